package videos

import (
	"github.com/nirmal141/nvidiaxdell-hack/pkg/db/models"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/pagination"
)

// ListParams holds cursor pagination inputs for the video library listing.
type ListParams struct {
	pagination.Params
}

// ListResult is one page of videos plus the cursor for the next page.
// Cursor is empty when there are no further pages.
type ListResult struct {
	Items  []models.Video
	Cursor string
}
