// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package layout

// node is the per-call working record. parent and number replace any
// external lookup table.
type node struct {
	id       string
	parent   *node
	children []*node
	number   int // 1-based index among siblings
	depth    int

	prelim float64
	mod    float64
	shift  float64
	change float64
	x      float64

	thread   *node
	ancestor *node
}

// build copies the topology into working nodes, breadth-first.
func build(t Topology) *node {
	rootID := t.Root()
	if rootID == "" {
		return nil
	}

	root := &node{id: rootID, number: 1}
	root.ancestor = root
	seen := map[string]bool{rootID: true}

	queue := []*node{root}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, cid := range t.Children(v.id) {
			if cid == "" || seen[cid] {
				continue
			}
			seen[cid] = true
			c := &node{id: cid, parent: v, number: len(v.children) + 1}
			c.ancestor = c
			v.children = append(v.children, c)
			queue = append(queue, c)
		}
	}
	return root
}

func (v *node) leftSibling() *node {
	if v.parent == nil || v.number <= 1 {
		return nil
	}
	return v.parent.children[v.number-2]
}

func (v *node) leftmostSibling() *node {
	if v.parent == nil || v.number <= 1 {
		return v
	}
	return v.parent.children[0]
}

func (v *node) nextLeft() *node {
	if len(v.children) > 0 {
		return v.children[0]
	}
	return v.thread
}

func (v *node) nextRight() *node {
	if len(v.children) > 0 {
		return v.children[len(v.children)-1]
	}
	return v.thread
}

// firstWalk assigns preliminary order coordinates bottom-up.
func firstWalk(v *node, distance float64) {
	if len(v.children) == 0 {
		if w := v.leftSibling(); w != nil {
			v.prelim = w.prelim + distance
		}
		return
	}

	defaultAncestor := v.children[0]
	for _, w := range v.children {
		firstWalk(w, distance)
		defaultAncestor = apportion(w, defaultAncestor, distance)
	}
	executeShifts(v)

	first, last := v.children[0], v.children[len(v.children)-1]
	midpoint := (first.prelim + last.prelim) / 2

	if w := v.leftSibling(); w != nil {
		v.prelim = w.prelim + distance
		v.mod = v.prelim - midpoint
	} else {
		v.prelim = midpoint
	}
}

// apportion pushes the subtree rooted at v clear of its left siblings by
// walking both contours in lockstep.
func apportion(v, defaultAncestor *node, distance float64) *node {
	w := v.leftSibling()
	if w == nil {
		return defaultAncestor
	}

	vir, vor := v, v
	vil, vol := w, v.leftmostSibling()
	sir, sor := v.mod, v.mod
	sil, sol := vil.mod, vol.mod

	for vil.nextRight() != nil && vir.nextLeft() != nil {
		vil = vil.nextRight()
		vir = vir.nextLeft()
		vol = vol.nextLeft()
		vor = vor.nextRight()
		vor.ancestor = v

		shift := (vil.prelim + sil) - (vir.prelim + sir) + distance
		if shift > 0 {
			moveSubtree(ancestorOf(vil, v, defaultAncestor), v, shift)
			sir += shift
			sor += shift
		}

		sil += vil.mod
		sir += vir.mod
		sol += vol.mod
		sor += vor.mod
	}

	if vil.nextRight() != nil && vor.nextRight() == nil {
		vor.thread = vil.nextRight()
		vor.mod += sil - sor
	}
	if vir.nextLeft() != nil && vol.nextLeft() == nil {
		vol.thread = vir.nextLeft()
		vol.mod += sir - sol
		defaultAncestor = v
	}
	return defaultAncestor
}

// moveSubtree shifts wr right and records how the shift is spread across
// the siblings between wl and wr.
func moveSubtree(wl, wr *node, shift float64) {
	subtrees := float64(wr.number - wl.number)
	wr.change -= shift / subtrees
	wr.shift += shift
	wl.change += shift / subtrees
	wr.prelim += shift
	wr.mod += shift
}

// executeShifts applies the pending shifts of v's children in one sweep.
func executeShifts(v *node) {
	var shift, change float64
	for i := len(v.children) - 1; i >= 0; i-- {
		w := v.children[i]
		w.prelim += shift
		w.mod += shift
		change += w.change
		shift += w.shift + change
	}
}

// ancestorOf returns vil's greatest uncommon ancestor with v when that
// ancestor is one of v's siblings, otherwise defaultAncestor.
func ancestorOf(vil, v, defaultAncestor *node) *node {
	if vil.ancestor != nil && vil.ancestor.parent == v.parent {
		return vil.ancestor
	}
	return defaultAncestor
}

// secondWalk resolves final order coordinates top-down and collects nodes
// in pre-order.
func secondWalk(v *node, m float64, depth int, out *[]*node) {
	v.x = v.prelim + m
	v.depth = depth
	*out = append(*out, v)
	for _, w := range v.children {
		secondWalk(w, m+v.mod, depth+1, out)
	}
}
