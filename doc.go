/*
Package mlworkflow provides file-backed conveniences for machine-learning
experimentation: packed dataset files with random access by key, a
build-or-reload helper that spot-checks a packed file against its live
source, an append-only checkpoint log for recording experimental results,
and pluggable freezers that decide how individual result values are
externalized.

We implement:

1. Datasets, a small interface (ListKeys, QueryItem) with in-memory,
transforming, caching and augmenting implementations.

2. Packed datasets, a single-file container serializing every item of a
dataset with a trailing index, so items are read back by key without
loading the rest (Pack, OpenPacked).

3. PackOrLoad, which builds the packed file when absent and otherwise
compares a few leading items against the live dataset, warning instead of
silently serving stale data.

4. Data collections, append-only logs of checkpoints: fields staged with
Set become one durable sparse record per Checkpoint call, and any past
state is recovered by layering the records (History). A metadata sidecar
holds annotations outside the checkpoint timeline.

5. Freezers, named codecs that turn a value into a small descriptor
stored in the log, inline (base64 msgpack, optionally snappy-compressed)
or out of line in a BlobStore (plain files beside the log, or a single
bbolt file).

# Packed file format

A packed dataset file is: header record* index

  - header = one msgpack uint64: the byte offset of the index XORed with
    1<<63. Pack first writes the bare sentinel (decoding to offset 0,
    always out of bounds) and overwrites it after the index is on disk,
    so a reader can never be handed a partially built file.
  - record = one msgpack value per key, in build order.
  - index = msgpack map {"k": keys, "o": offsets}, parallel arrays in
    build order.

# Collection log format

A collection log is newline-delimited compact JSON, one object per
checkpoint, holding only the fields that changed ("sparse" records).
Lines are only ever appended. The metadata sidecar at <path>_ uses the
same format; reading it merges all records, later keys winning.

All types are single-writer: a collection or packed dataset owns its
file handle until Close, and nothing here locks files across processes.
*/
package mlworkflow
