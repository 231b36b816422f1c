// Package engine реализует рендеринг шаблонов инструкций и валидацию
// спецификаций pipeline.
//
// Рендеринг разрешает плейсхолдеры по полям документа в один проход:
// чистый, детерминированный, с ограниченным временем выполнения
// (шаблон не может зациклиться). Отсутствующее поле — типизированная
// MissingFieldError, permanent класс ошибки.
//
// Валидация выполняется один раз при регистрации pipeline и
// гарантирует, что producer/consumer цепочка узлов замкнута: ошибки
// биндинга не могут возникнуть при выполнении из-за некорректной
// спецификации.
package engine
