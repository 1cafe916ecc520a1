package policy

import (
	"math/rand"
	"sort"
	"time"

	"github.com/cuemby/corral/pkg/errdefs"
	"github.com/cuemby/corral/pkg/storage"
	"github.com/cuemby/corral/pkg/types"
)

// DeletionTypeName is the built-in policy type selecting which nodes leave
// a cluster on scale-in.
const DeletionTypeName = "deletion"

// Candidate selection criteria
const (
	CriteriaRandom             = "RANDOM"
	CriteriaOldestFirst        = "OLDEST_FIRST"
	CriteriaYoungestFirst      = "YOUNGEST_FIRST"
	CriteriaOldestProfileFirst = "OLDEST_PROFILE_FIRST"
)

// DeletionSchema describes the spec keys accepted by the deletion policy
var DeletionSchema = map[string]interface{}{
	"criteria":                map[string]interface{}{"type": "string", "default": CriteriaRandom, "allowed": []string{CriteriaRandom, CriteriaOldestFirst, CriteriaYoungestFirst, CriteriaOldestProfileFirst}},
	"destroy_after_deletion":  map[string]interface{}{"type": "boolean", "default": true, "description": "whether a node is destroyed after removal"},
	"grace_period":            map[string]interface{}{"type": "integer", "default": 0, "description": "seconds before real deletion happens"},
	"reduce_desired_capacity": map[string]interface{}{"type": "boolean", "default": false},
}

// DeletionPolicy populates policy_data.deletion with the count, the victim
// candidates chosen per the configured criteria, and the destroy/grace
// options.
type DeletionPolicy struct {
	store                storage.Store
	name                 string
	criteria             string
	destroyAfterDeletion bool
	gracePeriod          time.Duration
}

// NewDeletionConstructor returns a Constructor that binds deletion policies
// to the store they select candidates from.
func NewDeletionConstructor(store storage.Store) Constructor {
	return func(row *types.Policy) (Policy, error) {
		p := &DeletionPolicy{
			store:                store,
			name:                 row.Name,
			criteria:             CriteriaRandom,
			destroyAfterDeletion: true,
		}
		if v, ok := row.Spec["criteria"].(string); ok {
			switch v {
			case CriteriaRandom, CriteriaOldestFirst, CriteriaYoungestFirst, CriteriaOldestProfileFirst:
				p.criteria = v
			default:
				return nil, errdefs.Validation("unknown deletion criteria %q", v)
			}
		}
		if v, ok := row.Spec["destroy_after_deletion"].(bool); ok {
			p.destroyAfterDeletion = v
		}
		switch v := row.Spec["grace_period"].(type) {
		case int:
			p.gracePeriod = time.Duration(v) * time.Second
		case float64:
			p.gracePeriod = time.Duration(v) * time.Second
		}
		return p, nil
	}
}

func (p *DeletionPolicy) Type() string { return DeletionTypeName }

func (p *DeletionPolicy) Targets() []Target {
	return []Target{
		{Phase: PhaseBefore, Action: types.ClusterScaleIn},
		{Phase: PhaseBefore, Action: types.ClusterDelNodes},
	}
}

func (p *DeletionPolicy) Attach(cluster *types.Cluster, data *Data) error { return nil }
func (p *DeletionPolicy) Detach(cluster *types.Cluster, data *Data) error { return nil }

// PreOp chooses the victims that can be deleted. DEL_NODES names its
// victims explicitly in the action inputs; in that case only the destroy
// and grace options are filled in.
func (p *DeletionPolicy) PreOp(clusterID string, action *types.Action, data *Data) error {
	pd := data.Deletion
	if pd == nil {
		pd = &DeletionData{}
	}

	if action.Action == types.ClusterDelNodes {
		pd.Candidates = inputStrings(action.Inputs, "nodes")
		pd.Count = len(pd.Candidates)
	}
	if pd.Count <= 0 {
		pd.Count = inputInt(action.Inputs, "count")
	}
	if pd.Count <= 0 {
		pd.Count = 1
	}

	if len(pd.Candidates) == 0 {
		candidates, err := p.selectCandidates(clusterID, pd.Count)
		if err != nil {
			return err
		}
		pd.Candidates = candidates
	}
	pd.DestroyAfterDeletion = p.destroyAfterDeletion
	pd.GracePeriod = p.gracePeriod
	data.Deletion = pd
	return nil
}

func (p *DeletionPolicy) PostOp(clusterID string, action *types.Action, data *Data) error {
	return nil
}

func (p *DeletionPolicy) selectCandidates(clusterID string, count int) ([]string, error) {
	nodes, err := p.store.ListNodes(storage.NodeFilter{ClusterID: clusterID})
	if err != nil {
		return nil, err
	}
	if count > len(nodes) {
		count = len(nodes)
	}
	candidates := make([]string, 0, count)

	switch p.criteria {
	case CriteriaRandom:
		for i := 0; i < count; i++ {
			r := rand.Intn(len(nodes))
			candidates = append(candidates, nodes[r].ID)
			nodes = append(nodes[:r], nodes[r+1:]...)
		}

	case CriteriaOldestFirst, CriteriaYoungestFirst:
		sortNodesByAge(nodes)
		for i := 0; i < count; i++ {
			if p.criteria == CriteriaOldestFirst {
				candidates = append(candidates, nodes[i].ID)
			} else {
				candidates = append(candidates, nodes[len(nodes)-1-i].ID)
			}
		}

	case CriteriaOldestProfileFirst:
		profileCreated := make(map[string]time.Time, len(nodes))
		for _, node := range nodes {
			prof, err := p.store.GetProfile(node.ProfileID, true)
			if err != nil {
				return nil, err
			}
			profileCreated[node.ID] = prof.CreatedAt
		}
		sort.SliceStable(nodes, func(i, j int) bool {
			return profileCreated[nodes[i].ID].Before(profileCreated[nodes[j].ID])
		})
		for i := 0; i < count; i++ {
			candidates = append(candidates, nodes[i].ID)
		}
	}

	return candidates, nil
}

// inputInt reads an integer action input, tolerating the float64 shape
// JSON decoding produces.
func inputInt(inputs map[string]interface{}, key string) int {
	switch v := inputs[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// inputStrings reads a string-slice action input in either decoded shape
func inputStrings(inputs map[string]interface{}, key string) []string {
	switch v := inputs[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func sortNodesByAge(nodes []*types.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if !nodes[i].CreatedAt.Equal(nodes[j].CreatedAt) {
			return nodes[i].CreatedAt.Before(nodes[j].CreatedAt)
		}
		return nodes[i].Name < nodes[j].Name
	})
}
