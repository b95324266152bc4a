package orientdb

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/jonasrmichel/orientdb-android/filter"
)

// Class is a named schema class bound to the cluster holding its records.
type Class struct {
	ClassName string `json:"name"`
	Cluster   int    `json:"cluster"`
}

func (c *Class) Name() string {
	return c.ClassName
}

func (c *Class) ClusterID() int {
	return c.Cluster
}

/*
Schema is the in-memory class and cluster registry. Lookups are
case-insensitive; the registered casing is preserved. The registry persists
itself as a small JSON file next to the cluster data.
*/
type Schema struct {
	mu          sync.RWMutex
	classes     map[string]*Class // keyed by lowercased name
	clusters    map[string]int    // cluster name → id
	clusterIDs  map[int]string    // id → cluster name
	nextCluster int
}

func NewSchema() *Schema {
	return &Schema{
		classes:     make(map[string]*Class),
		clusters:    make(map[string]int),
		clusterIDs:  make(map[int]string),
		nextCluster: 1,
	}
}

// FindClass implements filter.Schema.
func (s *Schema) FindClass(name string) (filter.Class, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.classes[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return c, true
}

// CreateClass registers a class together with a same-named cluster for its
// records.
func (s *Schema) CreateClass(name string) (*Class, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(name)
	if _, exists := s.classes[key]; exists {
		return nil, fmt.Errorf("class %q already exists", name)
	}

	id, err := s.addClusterLocked(name)
	if err != nil {
		return nil, err
	}
	c := &Class{ClassName: name, Cluster: id}
	s.classes[key] = c
	return c, nil
}

// AddCluster registers a standalone cluster and returns its id.
func (s *Schema) AddCluster(name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addClusterLocked(name)
}

func (s *Schema) addClusterLocked(name string) (int, error) {
	key := strings.ToLower(name)
	if _, exists := s.clusters[key]; exists {
		return 0, fmt.Errorf("cluster %q already exists", name)
	}
	id := s.nextCluster
	s.nextCluster++
	s.clusters[key] = id
	s.clusterIDs[id] = name
	return id, nil
}

// ClusterID resolves a cluster name.
func (s *Schema) ClusterID(name string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.clusters[strings.ToLower(name)]
	return id, ok
}

// ClusterName resolves a cluster id.
func (s *Schema) ClusterName(id int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.clusterIDs[id]
	return name, ok
}

// ClusterIDs returns all registered cluster ids in ascending order.
func (s *Schema) ClusterIDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int, 0, len(s.clusterIDs))
	for id := range s.clusterIDs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

type schemaFile struct {
	Classes     []*Class       `json:"classes"`
	Clusters    map[string]int `json:"clusters"`
	NextCluster int            `json:"next_cluster"`
}

// Save writes the registry to path.
func (s *Schema) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := schemaFile{Clusters: make(map[string]int), NextCluster: s.nextCluster}
	for _, c := range s.classes {
		out.Classes = append(out.Classes, c)
	}
	sort.Slice(out.Classes, func(i, j int) bool { return out.Classes[i].Cluster < out.Classes[j].Cluster })
	for id, name := range s.clusterIDs {
		out.Clusters[name] = id
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadSchema reads a registry previously written by Save. A missing file
// yields a fresh registry.
func LoadSchema(path string) (*Schema, error) {
	s := NewSchema()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	var in schemaFile
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("corrupt schema file %s: %w", path, err)
	}

	for name, id := range in.Clusters {
		s.clusters[strings.ToLower(name)] = id
		s.clusterIDs[id] = name
	}
	for _, c := range in.Classes {
		s.classes[strings.ToLower(c.ClassName)] = c
	}
	s.nextCluster = in.NextCluster
	if s.nextCluster < 1 {
		s.nextCluster = 1
	}
	return s, nil
}
