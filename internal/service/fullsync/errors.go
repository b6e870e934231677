package fullsync

import "errors"

// ErrUnknownResource is returned for a resource type the paginator does not
// mirror.
var ErrUnknownResource = errors.New("unknown sync resource type")
