package misc

const (
	FilePermissions = 0600 // user read + write
	DirPermissions  = 0700 // user read + write + search

	// AppName names the per-user config, state and runtime directories.
	AppName = "zero-trust"
)
