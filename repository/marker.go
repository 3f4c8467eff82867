package repository

// MarkerStore is a small key/value store for session markers. The persistent
// implementation survives restarts; the volatile one is scoped to the running
// tab and is wiped on sign-out. Writers only ever touch their own keys, so no
// read-modify-write coordination is needed.
type MarkerStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
	Clear() error
}

// Well-known marker keys.
const (
	MarkerAppVersion     = "app_version"
	MarkerPageRefreshing = "page_refreshing"
)
