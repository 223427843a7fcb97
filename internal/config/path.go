package config

const (
	MediaUrlPath = "/media/"

	// Object key namespaces for uploaded images.
	MediaPostsPrefix = "posts"
	MediaTempPrefix  = "temp"
)
