package payment

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	MetaOrderID  = "orderId"
	MetaUserID   = "userId"
	MetaManifest = "cart_items"
)

var ErrManifestMalformed = errors.New("payment: malformed item manifest")

// ManifestEntry is one "productId:quantity" pair of the compact item manifest.
type ManifestEntry struct {
	ProductID string
	Quantity  int
}

type Manifest []ManifestEntry

func (m Manifest) String() string {
	parts := make([]string, 0, len(m))
	for _, e := range m {
		parts = append(parts, e.ProductID+":"+strconv.Itoa(e.Quantity))
	}
	return strings.Join(parts, ",")
}

func (m Manifest) ProductIDs() []string {
	ids := make([]string, 0, len(m))
	seen := make(map[string]struct{}, len(m))
	for _, e := range m {
		if _, ok := seen[e.ProductID]; ok {
			continue
		}
		seen[e.ProductID] = struct{}{}
		ids = append(ids, e.ProductID)
	}
	return ids
}

// ParseManifest decodes "id:qty,id:qty". Empty segments are skipped; any
// other malformed segment rejects the whole manifest.
func ParseManifest(s string) (Manifest, error) {
	var out Manifest
	for _, seg := range strings.Split(s, ",") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		id, qty, ok := strings.Cut(seg, ":")
		if !ok || id == "" {
			return nil, fmt.Errorf("%w: %q", ErrManifestMalformed, seg)
		}
		n, err := strconv.Atoi(qty)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrManifestMalformed, seg)
		}
		out = append(out, ManifestEntry{ProductID: id, Quantity: n})
	}
	return out, nil
}

// Metadata is the typed view of the session metadata map.
type Metadata struct {
	OrderID     string
	UserID      string
	Manifest    string
	HasManifest bool
}

func MetadataFrom(m map[string]string) Metadata {
	manifest, ok := m[MetaManifest]
	return Metadata{
		OrderID:     m[MetaOrderID],
		UserID:      m[MetaUserID],
		Manifest:    manifest,
		HasManifest: ok,
	}
}

func (md Metadata) Map() map[string]string {
	return map[string]string{
		MetaOrderID:  md.OrderID,
		MetaUserID:   md.UserID,
		MetaManifest: md.Manifest,
	}
}
