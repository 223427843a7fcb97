// Package routes defines HTTP route constants for the application.
package routes

const (
	RobotsPath = "/robots.txt"
	SSEPath    = "/sse"
	MediaPath  = "/media/"
	HealthPath = "/healthz"

	// Public reading surface
	APIPosts    = "/api/posts"
	APIPost     = "/api/posts/{slug}"
	APISettings = "/api/settings"

	// Administration
	APIAdminPosts = "/api/admin/posts"
	APIAdminPost  = "/api/admin/posts/{id}"

	// Editor session
	EditorSession        = "/api/editor/session"
	EditorFields         = "/api/editor/session/fields"
	EditorTags           = "/api/editor/session/tags"
	EditorTag            = "/api/editor/session/tags/{tag}"
	EditorSave           = "/api/editor/session/save"
	EditorRecover        = "/api/editor/session/recover"
	EditorImages         = "/api/editor/session/images"
	EditorResize         = "/api/editor/session/resize"
	EditorWrap           = "/api/editor/session/wrap"
	EditorInsert         = "/api/editor/session/insert"
	EditorTOCObserve     = "/api/editor/session/toc/observe"
	PartialsDraftPreview = "/partials/draft/preview"
	SyntaxCSS            = "/syntax.css"

	// Mode
	Mode     = "/api/mode"
	ModeEdit = "/api/mode/edit"

	// Auth
	AuthChallenge = "/auth/challenge"
	AuthVerify    = "/auth/verify"
	AuthLogout    = "/auth/logout"
	WebhookUser   = "/webhook/user"
)

// SSE topics
const (
	TopicEditor     = "editor"
	TopicPostPrefix = "post:"
)
