package batch

// EventType discriminates progress events on the batch stream.
type EventType string

const (
	EventStart          EventType = "start"
	EventFolderStart    EventType = "folder_start"
	EventFileStart      EventType = "file_start"
	EventProcessing     EventType = "processing"
	EventSaving         EventType = "saving"
	EventFileComplete   EventType = "file_complete"
	EventDesignStart    EventType = "design_start"
	EventDesignComplete EventType = "design_complete"
	EventFolderComplete EventType = "folder_complete"
	EventFolderError    EventType = "folder_error"
	EventComplete       EventType = "complete"
)

// Totals summarizes a finished run.
type Totals struct {
	FoldersProcessed   int     `json:"folders_processed"`
	BackgroundRemovals int     `json:"total_background_removal"`
	DesignsCreated     int     `json:"total_design_created"`
	TotalCost          float64 `json:"total_cost"`
}

// FolderResult accumulates the outcome of one attempted folder. Exactly one
// result exists per folder attempted, whether or not its loop failed.
type FolderResult struct {
	Folder         string   `json:"folder"`
	Path           string   `json:"path"`
	FilesProcessed int      `json:"files_processed"`
	DesignCreated  bool     `json:"design_created"`
	Errors         []string `json:"errors,omitempty"`
}

// Event is one entry of the ordered progress stream. Events are emitted in
// processing order and never mutated after emission.
type Event struct {
	Type           EventType      `json:"type"`
	RunID          string         `json:"run_id,omitempty"`
	Message        string         `json:"message"`
	Folder         string         `json:"folder,omitempty"`
	FolderIndex    int            `json:"folder_index,omitempty"`
	FolderCount    int            `json:"folder_count,omitempty"`
	File           string         `json:"file,omitempty"`
	FileIndex      int            `json:"file_index,omitempty"`
	FileCount      int            `json:"file_count,omitempty"`
	FilesProcessed int            `json:"files_processed,omitempty"`
	DesignCreated  bool           `json:"design_created,omitempty"`
	Error          string         `json:"error,omitempty"`
	Results        []FolderResult `json:"results,omitempty"`
	Totals         *Totals        `json:"totals,omitempty"`
}

// EmitFunc delivers one event to the progress stream.
type EmitFunc func(Event)
