package ir

// WorkerVersion is the witnessgen release, reported by the CLI.
const WorkerVersion = "0.3.0"
