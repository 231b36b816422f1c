package ingest

import "errors"

// Ошибки ingestion.
var (
	// ErrPipelineNotFound — pipeline не существует.
	ErrPipelineNotFound = errors.New("pipeline not found")

	// ErrPipelineInactive — pipeline не принимает документы.
	ErrPipelineInactive = errors.New("pipeline is not active")

	// ErrNoVersions — у pipeline нет опубликованных версий.
	ErrNoVersions = errors.New("pipeline has no published versions")

	// ErrNoPayloads — пустой батч.
	ErrNoPayloads = errors.New("batch contains no payloads")

	// ErrMissingInputField — payload не содержит поле из ingestion-схемы.
	ErrMissingInputField = errors.New("payload is missing a schema field")

	// ErrProtectedField — payload пытается задать поле идентичности.
	ErrProtectedField = errors.New("payload overrides a protected field")
)
