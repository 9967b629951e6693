// Package memory implements a tiered conversational memory engine.
//
// Dialogue turns flow through three tiers of decreasing granularity and
// increasing lifetime:
//
//   - Short-term: per (user, session) FIFO of raw turns.
//   - Mid-term: per-user semantic clusters ("segments") of promoted turns
//     ("pages"), prioritized by a heat score and bounded by LFU eviction.
//   - Long-term: per-user profile narrative plus two bounded knowledge
//     ledgers (user facts, assistant facts).
//
// The Manager is the single entry point: SaveTurn drives the promotion
// pipeline (short->mid on buffer overflow, mid->long when a segment runs
// hot), Search fans out across mid- and long-term concurrently and merges
// the hits into one ranked context bundle.
//
// Architecture:
//   - Embedder: text-to-vector conversion (mock for local, ONNX for real
//     semantic search, ristretto-cached decorator for either)
//   - Generator: summarization/continuity/profile/knowledge tasks
//     (Claude API implementation in llm/claude)
//   - SegmentIndex: similarity search over segment summaries (chromem-go)
//   - Store: per-user-shard persistence (JSON files)
//
// All state is partitioned by user key and guarded by per-user locks;
// there is no cross-user interference and no multi-process coordination.
package memory
