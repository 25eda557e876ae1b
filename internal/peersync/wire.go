package peersync

import (
	"fmt"

	gocid "github.com/ipfs/go-cid"

	"github.com/systemshift/chanhist/internal/dag"
)

// headResponse is the body of GET /channels/{name}/head. Head is empty for
// a channel without history.
type headResponse struct {
	Channel string `json:"channel"`
	Head    string `json:"head"`
}

// objectsRequest is the body of POST /channels/{name}/objects.
type objectsRequest struct {
	Wants []string `json:"wants"`
	Haves []string `json:"haves,omitempty"`
}

type channelsResponse struct {
	Channels []string `json:"channels"`
}

func encodeCIDs(cids []gocid.Cid) []string {
	out := make([]string, 0, len(cids))
	for _, c := range cids {
		if c.Defined() {
			out = append(out, dag.CIDToFilename(c))
		}
	}
	return out
}

func decodeCIDs(ss []string) ([]gocid.Cid, error) {
	out := make([]gocid.Cid, 0, len(ss))
	for _, s := range ss {
		c, err := dag.ParseCID(s)
		if err != nil {
			return nil, fmt.Errorf("bad id %q: %w", s, err)
		}
		out = append(out, c)
	}
	return out, nil
}
