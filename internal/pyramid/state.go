package pyramid

import (
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"
)

type TileStatus int32

const (
	TileStatusPending TileStatus = iota
	TileStatusProcessing
	TileStatusCropped
	TileStatusError
	TileStatusUploading
	TileStatusDone
)

func (s TileStatus) String() string {
	switch s {
	case TileStatusPending:
		return "pending"
	case TileStatusProcessing:
		return "processing"
	case TileStatusCropped:
		return "cropped"
	case TileStatusError:
		return "error"
	case TileStatusUploading:
		return "uploading"
	case TileStatusDone:
		return "done"
	default:
		return fmt.Sprintf("unknown status %d", s)
	}
}

// Finished reports whether the tile holds usable data.
func (s TileStatus) Finished() bool {
	return s == TileStatusCropped || s == TileStatusUploading || s == TileStatusDone
}

type Key struct {
	Level int `json:"level"`
	Col   int `json:"col"`
	Row   int `json:"row"`
}

// String renders the key as level_col_row, the name a tile has in an archive.
func (k Key) String() string {
	return fmt.Sprintf("%d_%d_%d", k.Level, k.Col, k.Row)
}

type Tile struct {
	Key    Key        `json:"key"`
	Status TileStatus `json:"status"`
	Rect   Rect       `json:"rect"`
	Error  string     `json:"error,omitempty"`
	Data   []byte     `json:"-"`
}

type EventKind int32

const (
	EventReset EventKind = iota
	EventLevel
	EventTile
	EventFinished
)

// Event is a change notification sent to subscribers.
type Event struct {
	Kind   EventKind
	Level  int
	Key    Key
	Status TileStatus
}

// Snapshot is a point in time copy of a State.
type Snapshot struct {
	Processing   bool
	TileSize     int
	SourceWidth  int
	SourceHeight int
	MaxLevel     int
	Levels       []Level
	Tiles        map[Key]Tile
}

// SortedTiles returns the tiles ordered by level, column and row.
func (s Snapshot) SortedTiles() []Tile {
	tiles := lo.Values(s.Tiles)
	sort.Slice(tiles, func(i, j int) bool {
		a, b := tiles[i].Key, tiles[j].Key
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if a.Col != b.Col {
			return a.Col < b.Col
		}
		return a.Row < b.Row
	})

	return tiles
}

func (s Snapshot) Failed() []Tile {
	return lo.Filter(s.SortedTiles(), func(t Tile, _ int) bool {
		return t.Status == TileStatusError
	})
}

// FailedLevels returns the levels whose resize failed. They have no tiles.
func (s Snapshot) FailedLevels() []Level {
	return lo.Filter(s.Levels, func(l Level, _ int) bool {
		return l.Failed()
	})
}

// Complete reports whether the build settled, every level was built and
// every tile holds data.
func (s Snapshot) Complete() bool {
	return !s.Processing && len(s.Tiles) > 0 && len(s.FailedLevels()) == 0 && lo.CountBy(lo.Values(s.Tiles), func(t Tile) bool {
		return !t.Status.Finished()
	}) == 0
}

// State is the record of one pyramid build. A new build resets it.
type State struct {
	mu sync.Mutex

	processing   bool
	tileSize     int
	sourceWidth  int
	sourceHeight int
	maxLevel     int
	levels       []Level
	tiles        map[Key]*Tile

	subs   map[int]chan Event
	nextID int
}

func NewState() *State {
	return &State{
		tiles: map[Key]*Tile{},
		subs:  map[int]chan Event{},
	}
}

// Subscribe returns a channel of state changes and a function that ends the
// subscription. Events are dropped for a subscriber whose buffer is full.
func (s *State) Subscribe(buffer int) (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	ch := make(chan Event, buffer)
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *State) publish(e Event) {
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Reset discards everything from a previous build and marks a new one as processing.
func (s *State) Reset(tileSize, width, height int, levels []Level) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processing = true
	s.tileSize = tileSize
	s.sourceWidth = width
	s.sourceHeight = height
	s.maxLevel = 0
	if len(levels) > 0 {
		s.maxLevel = levels[0].Level
	}
	s.levels = append([]Level{}, levels...)
	s.tiles = map[Key]*Tile{}

	s.publish(Event{Kind: EventReset})
}

func (s *State) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processing = false
	s.publish(Event{Kind: EventFinished})
}

// SetLevel replaces the planned level with the built one.
func (s *State) SetLevel(level Level) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.levels {
		if s.levels[i].Level == level.Level {
			s.levels[i] = level
		}
	}

	s.publish(Event{Kind: EventLevel, Level: level.Level})
}

// SetLevelError marks a level as failed.
func (s *State) SetLevelError(level int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.levels {
		if s.levels[i].Level == level {
			s.levels[i].Error = reason
		}
	}

	s.publish(Event{Kind: EventLevel, Level: level})
}

// Transpose swaps the edges of the source and of every level not built yet.
// Built levels already carry the size the engine produced.
func (s *State) Transpose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sourceWidth, s.sourceHeight = s.sourceHeight, s.sourceWidth
	for i := range s.levels {
		l := &s.levels[i]
		if l.Image != nil {
			continue
		}
		l.Width, l.Height = l.Height, l.Width
		l.TilesWide, l.TilesHigh = l.TilesHigh, l.TilesWide
	}
}

func (s *State) Level(level int) (Level, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.levels {
		if l.Level == level {
			return l, true
		}
	}

	return Level{}, false
}

// AddTiles creates pending tiles for a level grid. Existing keys are kept.
func (s *State) AddTiles(level int, rects []Rect) []Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]Key, 0, len(rects))
	for _, r := range rects {
		k := Key{Level: level, Col: r.Col, Row: r.Row}
		if _, ok := s.tiles[k]; !ok {
			s.tiles[k] = &Tile{Key: k, Rect: r}
		}
		keys = append(keys, k)
	}

	return keys
}

func (s *State) Tile(key Key) (Tile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tiles[key]
	if !ok {
		return Tile{}, false
	}

	return *t, true
}

// SetStatus moves a tile to status. Data is only replaced when non nil.
func (s *State) SetStatus(key Key, status TileStatus, data []byte, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tiles[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTileNotFound, key)
	}

	t.Status = status
	t.Error = reason
	if data != nil {
		t.Data = data
	}

	s.publish(Event{Kind: EventTile, Level: key.Level, Key: key, Status: status})

	return nil
}

func (s *State) Processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.processing
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	tiles := make(map[Key]Tile, len(s.tiles))
	for k, t := range s.tiles {
		tiles[k] = *t
	}

	return Snapshot{
		Processing:   s.processing,
		TileSize:     s.tileSize,
		SourceWidth:  s.sourceWidth,
		SourceHeight: s.sourceHeight,
		MaxLevel:     s.maxLevel,
		Levels:       append([]Level{}, s.levels...),
		Tiles:        tiles,
	}
}
