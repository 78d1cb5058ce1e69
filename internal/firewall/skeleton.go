package firewall

import _ "embed"

// Skeleton is the static base ruleset. It declares the tables, base chains
// and helper chains that compiled batches attach to, and is idempotent: the
// daemon feeds it to nft at the start of every enabled cycle before the
// generated command batch.
//
//go:embed resources/palisade.nft
var Skeleton string
