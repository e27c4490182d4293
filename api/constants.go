package api

const (
	// SniffLength is how many leading bytes are read to identify an upload
	SniffLength = 512

	// MultipartOverhead is allowed on top of MaxFileSize for form boundaries and fields
	MultipartOverhead = 1 << 20

	// MaxRenderWidth bounds the container width a client may request
	MaxRenderWidth = 8192

	// UploadField is the multipart field carrying the document
	UploadField = "file"
)

// Response headers describing a rendered page
const (
	HeaderPage         = "X-Page"
	HeaderPageCount    = "X-Page-Count"
	HeaderRenderWidth  = "X-Render-Width"
	HeaderRenderHeight = "X-Render-Height"
	HeaderRenderScale  = "X-Render-Scale"
)
