package queue

import (
	"errors"
	"strings"
)

// Paths are slash-separated, rooted with a leading slash, no trailing slash:
// "/notifications/u1/rec-42". Cleaning is deliberately strict rather than
// forgiving; producers and config share the same canonical form.

func CleanPath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.Trim(p, "/")
	if p == "" {
		return "/"
	}
	parts := strings.Split(p, "/")
	kept := parts[:0]
	for _, s := range parts {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return "/" + strings.Join(kept, "/")
}

// ChildKey returns the immediate child segment of full under parent, and
// whether full is a strict descendant of parent.
func ChildKey(parent, full string) (key string, leaf bool, ok bool) {
	parent = CleanPath(parent)
	full = CleanPath(full)
	var rest string
	if parent == "/" {
		rest = strings.TrimPrefix(full, "/")
	} else {
		if !strings.HasPrefix(full, parent+"/") {
			return "", false, false
		}
		rest = full[len(parent)+1:]
	}
	if rest == "" {
		return "", false, false
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i], false, true
	}
	return rest, true, true
}

// LastSegment returns the final path segment ("" for the root).
func LastSegment(p string) string {
	p = CleanPath(p)
	if p == "/" {
		return ""
	}
	return p[strings.LastIndexByte(p, '/')+1:]
}

// ParentPath returns the parent of p ("/" when p is top-level).
func ParentPath(p string) string {
	p = CleanPath(p)
	if p == "/" {
		return "/"
	}
	i := strings.LastIndexByte(p, '/')
	if i == 0 {
		return "/"
	}
	return p[:i]
}

// Topology decides the queue root and how a record's recipient is resolved.
type Topology string

const (
	// TopologyFlat: {root}/{recipientId}/{recordId}; the branch key is the
	// recipient identity.
	TopologyFlat Topology = "flat"

	// TopologyTenant: {root}/{tenantId}/notifications/...; the record's uid
	// field names the recipient because the enclosing branches are
	// organizational groupings.
	TopologyTenant Topology = "tenant"
)

// tenant topologies reserve this segment between the tenant branch and its
// record queue.
const tenantQueueSegment = "notifications"

func ParseTopology(s string) (Topology, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "flat":
		return TopologyFlat, nil
	case "tenant":
		return TopologyTenant, nil
	default:
		return "", errors.New("unknown topology: " + s)
	}
}

// DefaultRoot is the queue root used when config leaves it empty.
func (t Topology) DefaultRoot() string {
	if t == TopologyTenant {
		return "/tenants"
	}
	return "/notifications"
}

// Recipient resolves the target recipient for a record that lives directly
// under branch. The payload uid always wins; otherwise the branch key is the
// recipient. Tenant topologies require the uid: their branch keys name
// groupings, not people.
func (t Topology) Recipient(branch string, p *Payload) (string, error) {
	if p != nil && strings.TrimSpace(p.UID) != "" {
		return strings.TrimSpace(p.UID), nil
	}
	if t == TopologyTenant {
		return "", errors.New("tenant record has no uid")
	}
	key := LastSegment(branch)
	if key == "" || key == tenantQueueSegment {
		return "", errors.New("cannot resolve recipient from branch " + branch)
	}
	return key, nil
}
