// Package rounds implements the per-round stages of a proving job.
//
// Every round is described by one Handler record holding five functions:
//
//	LoadInput        read the job's input artifacts from the blob store
//	PrepareJob       resolve proving keys and assemble the circuits to prove
//	ProcessJob       run the prover and build the round's output artifacts
//	StoreOutputs     write the output blobs under derived keys
//	RecordCompletion mark the job successful and create the next round's jobs
//
// For selects the record for a round. The stages receive every shared handle
// (blob store, codec, transactional store, prover) through an explicit Env.
package rounds
