package services

// Query cache prefixes. Mutations invalidate every key under them.
const (
	KeyProducts       = "products"
	KeyAdminProducts  = "admin-products"
	KeyPublishedPosts = "published-blog-posts"
	KeyPublishedPost  = "published-blog-post"
	KeyAllPosts       = "all-blog-posts"
	KeyAdminUsers     = "admin-users"
	KeySettings       = "settings"
)
