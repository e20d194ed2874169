// Package validate checks decoded request bodies against declared shapes.
//
// A Shape lists fields with a JSON kind (string, number, array, object) and
// whether they are required:
//
//	shape := validate.Shape{
//		validate.Required("title", validate.String),
//		validate.Required("comp", validate.Number),
//	}
//	res := validate.Validate(body, shape)
//
// Validation fails closed. A missing required field or a present field of the
// wrong kind fails, and Result.Message names the first such field. Extra
// fields are ignored.
package validate
