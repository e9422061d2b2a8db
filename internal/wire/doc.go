// Package wire defines the JSON frame format spoken with the realtime
// gateway.
//
// Conventions:
//   - Every frame carries a "type" discriminator (string)
//   - Known types decode into a closed set of Kind values; anything else
//     is KindUnknown with the original type string preserved
//   - Payloads stay as json.RawMessage so consumers see them unchanged
package wire
