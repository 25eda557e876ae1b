package identity

import (
	"crypto/sha256"
	"fmt"
)

var petAdjectives = [32]string{
	"amber", "brisk", "cobalt", "dapper", "eager", "fuzzy", "gentle", "hollow",
	"ivory", "jolly", "lunar", "mellow", "nimble", "olive", "plucky", "quiet",
	"rusty", "silver", "tawny", "umber", "velvet", "wily", "young", "zesty",
	"coral", "dusky", "frosty", "golden", "hazel", "misty", "sandy", "stormy",
}

var petNouns = [32]string{
	"otter", "badger", "heron", "lynx", "marten", "osprey", "puffin", "raven",
	"salmon", "tapir", "urchin", "vole", "walrus", "yak", "zebra", "beetle",
	"condor", "dingo", "egret", "ferret", "gecko", "ibis", "jackal", "koala",
	"lemur", "moose", "newt", "ocelot", "panda", "quail", "robin", "stoat",
}

// Petname derives a short, stable, human-readable handle from a DID for
// display next to signed messages. Distinct DIDs may share a petname.
func Petname(did string) string {
	h := sha256.Sum256([]byte(did))
	return fmt.Sprintf("%s-%s", petAdjectives[h[0]%32], petNouns[h[1]%32])
}
