package circuit

import "github.com/edp1096/toy-mcusim/pkg/device"

// Node is one electrically connected set of leads. Index 0 is ground.
type Node struct {
	Index   int
	Voltage float64
	Leads   []device.Lead
}

type connection struct {
	a, b device.Lead
}

// leadSet is a union-find over flat lead ids.
type leadSet struct {
	parent []int
	rank   []int
}

func newLeadSet(n int) *leadSet {
	s := &leadSet{parent: make([]int, n), rank: make([]int, n)}
	for i := range s.parent {
		s.parent[i] = i
	}
	return s
}

func (s *leadSet) find(x int) int {
	for s.parent[x] != x {
		s.parent[x] = s.parent[s.parent[x]]
		x = s.parent[x]
	}
	return x
}

func (s *leadSet) union(a, b int) {
	ra, rb := s.find(a), s.find(b)
	if ra == rb {
		return
	}
	switch {
	case s.rank[ra] < s.rank[rb]:
		s.parent[ra] = rb
	case s.rank[ra] > s.rank[rb]:
		s.parent[rb] = ra
	default:
		s.parent[rb] = ra
		s.rank[ra]++
	}
}

// resolveNodes merges connections, internally connected leads and ground
// leads, then numbers the classes: ground 0, the rest in first-seen order.
// It writes each device's lead nodes and returns the node list.
func (c *Circuit) resolveNodes() []*Node {
	offsets := make([]int, len(c.devices))
	total := 0
	for i, d := range c.devices {
		offsets[i] = total
		total += d.LeadCount() + d.InternalLeadCount()
	}
	set := newLeadSet(total)

	for _, conn := range c.connections {
		set.union(offsets[c.index[conn.a.Device]]+conn.a.Index, offsets[c.index[conn.b.Device]]+conn.b.Index)
	}

	ground := -1
	for i, d := range c.devices {
		n := d.LeadCount() + d.InternalLeadCount()
		for a := range n {
			for b := a + 1; b < n; b++ {
				if d.LeadsAreConnected(a, b) {
					set.union(offsets[i]+a, offsets[i]+b)
				}
			}
			if a < d.LeadCount() && d.LeadIsGround(a) {
				if ground < 0 {
					ground = offsets[i] + a
				} else {
					set.union(ground, offsets[i]+a)
				}
			}
		}
	}

	nodes := []*Node{{Index: 0}}
	numbers := make(map[int]int)
	if ground >= 0 {
		numbers[set.find(ground)] = 0
	}

	for i, d := range c.devices {
		n := d.LeadCount() + d.InternalLeadCount()
		for a := range n {
			root := set.find(offsets[i] + a)
			idx, ok := numbers[root]
			if !ok {
				idx = len(nodes)
				numbers[root] = idx
				nodes = append(nodes, &Node{Index: idx})
			}
			d.SetLeadNode(a, idx)
			nodes[idx].Leads = append(nodes[idx].Leads, device.LeadOf(d, a))
		}
	}

	return nodes
}
