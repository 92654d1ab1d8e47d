package metadata

// Image is an artwork reference on a listing, media group or recording
type Image struct {
	AssetType string `json:"assetType"`
	URL       string `json:"url"`
}

// Program is the scheduled program carried by a listing
type Program struct {
	Title  string  `json:"title"`
	Images []Image `json:"images"`
}

// Listing is a scheduled program or recording record keyed by event or recording id
type Listing struct {
	ID        string  `json:"id"`
	StationID string  `json:"stationId"`
	Program   Program `json:"program"`
}

// Image returns the URL of the program's first image, or "" when there is none
func (l *Listing) Image() string {
	if l == nil || len(l.Program.Images) == 0 {
		return ""
	}
	return l.Program.Images[0].URL
}

// Title returns the program title; a nil listing has an empty title
func (l *Listing) Title() string {
	if l == nil {
		return ""
	}
	return l.Program.Title
}

// MediaGroup is an on-demand title record
type MediaGroup struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Images []Image `json:"images"`
}

// Image returns the URL of the group's first image, or ""
func (g *MediaGroup) Image() string {
	if g == nil || len(g.Images) == 0 {
		return ""
	}
	return g.Images[0].URL
}

// Recording is a single network DVR recording
type Recording struct {
	ID       string `json:"recordingId"`
	Title    string `json:"title"`
	ImageURL string `json:"imageUrl"`
	Season   *int   `json:"season,omitempty"`
	Episode  *int   `json:"episode,omitempty"`
}

// RecordingShow groups the recordings of a show or season. Children keep arrival order.
type RecordingShow struct {
	MediaGroupID string      `json:"mediaGroupId"`
	Title        string      `json:"title"`
	ImageURL     string      `json:"imageUrl"`
	EpisodeCount int         `json:"episodeCount"`
	Children     []Recording `json:"children,omitempty"`
}

// Recording item kinds
const (
	ItemRecording = "recording"
	ItemShow      = "show"
)

// RecordingItem is one entry of the recordings listing: either a single recording or a show
type RecordingItem struct {
	Type      string         `json:"type"`
	Recording *Recording     `json:"recording,omitempty"`
	Show      *RecordingShow `json:"show,omitempty"`
}

// rawRecording is the wire shape of an entry of /networkdvrrecordings
type rawRecording struct {
	Type               string  `json:"type"`
	RecordingID        string  `json:"recordingId"`
	Title              string  `json:"title"`
	ShowTitle          string  `json:"showTitle"`
	Images             []Image `json:"images"`
	SeasonNumber       *int    `json:"seasonNumber"`
	EpisodeNumber      *int    `json:"episodeNumber"`
	MediaGroupID       string  `json:"mediaGroupId"`
	ParentMediaGroupID string  `json:"parentMediaGroupId"`
	NumberOfEpisodes   int     `json:"numberOfEpisodes"`
}

func (r rawRecording) image() string {
	if len(r.Images) == 0 {
		return ""
	}
	return r.Images[0].URL
}

func (r rawRecording) single() Recording {
	return Recording{
		ID:       r.RecordingID,
		Title:    r.Title,
		ImageURL: r.image(),
		Season:   r.SeasonNumber,
		Episode:  r.EpisodeNumber,
	}
}

type recordingsResponse struct {
	Recordings []rawRecording `json:"recordings"`
}
