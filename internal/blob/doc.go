// Package blob provides the content store for large proof artifacts.
//
// Artifacts are addressed by the string form of ir.ArtifactKey. Every blob
// starts with a one-byte format tag so that blobs written by older workers
// remain readable while the serialization format migrates:
//
//	0x01  JSON (legacy)
//	0x02  CBOR, core deterministic encoding (current)
//
// Readers try an ordered list of decoders, current format first. Only when
// every decoder fails is the read reported, as a *RetrievalError carrying
// each decoder's message.
//
// Backends:
//   - MemStore: in-process map, for tests
//   - FileStore: one file per key under a base directory
//   - LevelStore: goleveldb database
//
// WriteOnce wraps any backend and refuses to replace a blob with different
// content.
package blob
