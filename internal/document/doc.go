// Package document provides the JSON value model for Thing Descriptions.
//
// A Thing Description is an arbitrary JSON object. The directory keeps it as a
// tree of sealed Value types so that it can be merged, converted to graph
// triples and hashed without losing number literals:
//
//   - Null, String, Bool: JSON scalars
//   - Number: the JSON number literal, kept verbatim
//   - Array, Object: containers
//
// Object.MarshalJSON emits keys in RFC 8785 order so stored documents and API
// responses are byte-stable. MarshalCanonical produces RFC 8785 canonical JSON
// (NFC normalized strings, no HTML escaping) and Hash derives the document
// entity tag from it.
package document
