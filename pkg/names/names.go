// Package names generates deterministic human-readable names. The same
// inputs always map to the same adjective-noun pair, so generated names are
// stable across runs without any stored state.
package names

import (
	"hash/fnv"
	"strings"
)

// Generate derives an "adjective-noun" name from the given parts.
func Generate(parts ...string) string {
	h := fnv.New64a()
	h.Write([]byte(strings.Join(parts, "/")))
	sum := h.Sum64()

	adjective := adjectives[sum%uint64(len(adjectives))]
	noun := nouns[(sum/uint64(len(adjectives)))%uint64(len(nouns))]
	return adjective + "-" + noun
}

var adjectives = []string{
	"able", "acute", "agile", "alert", "amber", "ample", "ancient", "arctic",
	"astral", "autumn", "awake", "azure", "bold", "brave", "breezy", "bright",
	"brisk", "broad", "calm", "candid", "careful", "cheerful", "chief", "civil",
	"clean", "clear", "clever", "close", "cobalt", "cosmic", "cozy", "crimson",
	"crisp", "curious", "daring", "dawn", "deep", "direct", "divine", "dry",
	"eager", "early", "earnest", "easy", "elder", "electric", "elegant", "emerald",
	"equal", "exact", "fair", "faithful", "famous", "fast", "fearless", "fine",
	"firm", "first", "fleet", "fluent", "fond", "formal", "frank", "free",
	"fresh", "frosty", "full", "gentle", "giant", "gifted", "glad", "golden",
	"good", "graceful", "grand", "great", "green", "happy", "hardy", "helpful",
	"hidden", "high", "honest", "humble", "icy", "ideal", "indigo", "inner",
	"iron", "jade", "jolly", "keen", "kind", "large", "late", "light",
	"lively", "local", "lone", "loyal", "lucid", "lucky", "lunar", "magnetic",
	"main", "major", "mellow", "merry", "mighty", "mild", "modern", "modest",
	"native", "neat", "noble", "north", "novel", "odd", "open", "orange",
	"pacific", "patient", "placid", "plain", "polar", "polite", "prime", "proud",
	"pure", "quick", "quiet", "rapid", "rare", "ready", "real", "regal",
	"rich", "robust", "rosy", "royal", "rustic", "sage", "scarlet", "serene",
	"sharp", "silent", "silver", "simple", "sincere", "smart", "smooth", "snowy",
	"solar", "solid", "sound", "spry", "stable", "steady", "stellar", "still",
	"stout", "strong", "subtle", "sunny", "swift", "tidy", "true", "upper",
	"valid", "vast", "violet", "vital", "vivid", "warm", "wise", "young",
}

var nouns = []string{
	"anchor", "apex", "arch", "arrow", "aspen", "atlas", "aurora", "badger",
	"banyan", "basin", "beacon", "bear", "beech", "birch", "bison", "bloom",
	"bluff", "bobcat", "boulder", "branch", "bridge", "brook", "butte", "canyon",
	"cardinal", "cascade", "cedar", "channel", "cliff", "cloud", "clover", "coast",
	"comet", "compass", "condor", "coral", "cove", "coyote", "crane", "crater",
	"creek", "crest", "current", "cypress", "dale", "dawn", "delta", "dew",
	"dove", "drift", "dune", "eagle", "echo", "elk", "ember", "falcon",
	"fern", "field", "finch", "fjord", "flame", "flint", "forest", "fox",
	"frost", "garden", "gate", "geyser", "glacier", "glade", "glen", "grove",
	"gulf", "harbor", "hawk", "hazel", "heron", "hill", "hollow", "horizon",
	"ibis", "inlet", "iris", "island", "jaguar", "jasper", "jay", "juniper",
	"knoll", "lagoon", "lake", "larch", "lark", "laurel", "ledge", "lily",
	"lynx", "maple", "marsh", "meadow", "mesa", "mist", "moon", "moss",
	"mountain", "nebula", "nest", "oak", "oasis", "ocean", "orbit", "orchid",
	"oriole", "osprey", "otter", "owl", "palm", "panther", "peak", "pebble",
	"pelican", "pine", "plain", "plateau", "pond", "prairie", "puma", "quail",
	"quartz", "rain", "rapids", "raven", "reef", "ridge", "river", "robin",
	"rowan", "sage", "sand", "sea", "shore", "sky", "slope", "sparrow",
	"spring", "spruce", "star", "stone", "storm", "stream", "summit", "sun",
	"swan", "thicket", "thorn", "tide", "timber", "trail", "tundra", "valley",
	"vale", "vista", "wave", "willow", "wind", "wolf", "wren", "zenith",
}
