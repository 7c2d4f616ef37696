package mock

import (
	"github.com/dvangennip/web-remote-for-OBS/internal/client"
)

// The helpers below change the studio the way an operator working in OBS
// itself would, and push the matching events.

// AddScene appends a scene and announces ScenesChanged.
func (s *Server) AddScene(sc Scene) {
	s.mu.Lock()
	s.studio.Scenes = append(s.studio.Scenes, sc)
	s.mu.Unlock()
	s.Emit(client.EventScenesChanged, nil)
}

// RemoveScene deletes a scene and announces ScenesChanged.
func (s *Server) RemoveScene(name string) {
	s.mu.Lock()
	scenes := s.studio.Scenes[:0]
	for _, sc := range s.studio.Scenes {
		if sc.Name != name {
			scenes = append(scenes, sc)
		}
	}
	s.studio.Scenes = scenes
	s.mu.Unlock()
	s.Emit(client.EventScenesChanged, nil)
}

// RenameScene renames a scene and announces SourceRenamed.
func (s *Server) RenameScene(from, to string) {
	s.mu.Lock()
	if sc := s.studio.scene(from); sc != nil {
		sc.Name = to
	}
	if s.studio.Current == from {
		s.studio.Current = to
	}
	if s.studio.Preview == from {
		s.studio.Preview = to
	}
	s.mu.Unlock()
	s.Emit(client.EventSourceRenamed, map[string]any{"previousName": from, "newName": to, "sourceType": "scene"})
}

// AddSource adds an input and announces SourceCreated.
func (s *Server) AddSource(src Source) {
	s.mu.Lock()
	s.studio.Sources = append(s.studio.Sources, src)
	s.mu.Unlock()
	s.Emit(client.EventSourceCreated, map[string]any{"sourceName": src.Name, "sourceType": "input", "sourceKind": src.TypeID})
}

// RemoveSource deletes an input and announces SourceDestroyed.
func (s *Server) RemoveSource(name string) {
	s.mu.Lock()
	kind := ""
	sources := s.studio.Sources[:0]
	for _, src := range s.studio.Sources {
		if src.Name == name {
			kind = src.TypeID
			continue
		}
		sources = append(sources, src)
	}
	s.studio.Sources = sources
	s.mu.Unlock()
	s.Emit(client.EventSourceDestroyed, map[string]any{"sourceName": name, "sourceType": "input", "sourceKind": kind})
}

// RenameSource renames an input and announces SourceRenamed.
func (s *Server) RenameSource(from, to string) {
	s.mu.Lock()
	if src := s.studio.source(from); src != nil {
		src.Name = to
	}
	for i := range s.studio.Scenes {
		for j, n := range s.studio.Scenes[i].Sources {
			if n == from {
				s.studio.Scenes[i].Sources[j] = to
			}
		}
	}
	s.mu.Unlock()
	s.Emit(client.EventSourceRenamed, map[string]any{"previousName": from, "newName": to, "sourceType": "input"})
}

// AddFilter appends a filter to a source and announces SourceFilterAdded.
func (s *Server) AddFilter(source string, f Filter) {
	s.mu.Lock()
	if src := s.studio.source(source); src != nil {
		src.Filters = append(src.Filters, f)
	}
	s.mu.Unlock()
	s.Emit(client.EventSourceFilterAdded, map[string]any{
		"sourceName": source, "filterName": f.Name, "filterType": f.Type, "filterSettings": f.Settings,
	})
}

// RemoveFilter deletes a filter and announces SourceFilterRemoved.
func (s *Server) RemoveFilter(source, name string) {
	s.mu.Lock()
	typ := ""
	if src := s.studio.source(source); src != nil {
		filters := src.Filters[:0]
		for _, f := range src.Filters {
			if f.Name == name {
				typ = f.Type
				continue
			}
			filters = append(filters, f)
		}
		src.Filters = filters
	}
	s.mu.Unlock()
	s.Emit(client.EventSourceFilterRemoved, map[string]any{"sourceName": source, "filterName": name, "filterType": typ})
}

// ReorderFilters reorders a source's filters and announces SourceFiltersReordered.
func (s *Server) ReorderFilters(source string, names []string) {
	s.mu.Lock()
	var list []map[string]any
	if src := s.studio.source(source); src != nil {
		byName := make(map[string]Filter, len(src.Filters))
		for _, f := range src.Filters {
			byName[f.Name] = f
		}
		ordered := make([]Filter, 0, len(names))
		for _, n := range names {
			if f, ok := byName[n]; ok {
				ordered = append(ordered, f)
			}
		}
		src.Filters = ordered
		for _, f := range ordered {
			list = append(list, map[string]any{"name": f.Name, "type": f.Type, "enabled": f.Enabled})
		}
	}
	s.mu.Unlock()
	s.Emit(client.EventSourceFiltersReordered, map[string]any{"sourceName": source, "filters": list})
}
