/*
 * Copyright 2022 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/** This is an implementation of the Lengauer-Tarjan algorithm described in
 *  https://doi.org/10.1145%2F357062.357071
 */

package blockmap

import (
    `github.com/oleiade/lane`
)

type _LtNode struct {
    semi     int
    node     int
    dom      *_LtNode
    label    *_LtNode
    parent   *_LtNode
    ancestor *_LtNode
    pred     []*_LtNode
    bucket   map[*_LtNode]struct{}
}

type _LengauerTarjan struct {
    nodes  []*_LtNode
    vertex map[int]int
}

func newLengauerTarjan() *_LengauerTarjan {
    return &_LengauerTarjan {
        vertex: make(map[int]int),
    }
}

type _DfsEdge struct {
    from *_LtNode
    to   int
}

func (self *_LengauerTarjan) dfs(bm *BlockMap, root int) {
    stk := lane.NewStack()
    stk.Push(_DfsEdge{to: root})

    /* number the vertices in depth-first order */
    for !stk.Empty() {
        e := stk.Pop().(_DfsEdge)
        if _, ok := self.vertex[e.to]; ok {
            continue
        }

        /* create a new node */
        i := len(self.nodes)
        p := &_LtNode {
            semi   : i,
            node   : e.to,
            parent : e.from,
            bucket : make(map[*_LtNode]struct{}),
        }

        /* add to node list */
        p.label = p
        self.vertex[e.to] = i
        self.nodes = append(self.nodes, p)

        /* visit the successors, first successor first */
        succ := bm.Blocks[e.to].Successors
        for j := len(succ) - 1; j >= 0; j-- {
            if _, ok := self.vertex[succ[j]]; !ok {
                stk.Push(_DfsEdge{from: p, to: succ[j]})
            }
        }
    }

    /* add predecessors */
    for _, p := range self.nodes {
        for _, w := range bm.Blocks[p.node].Successors {
            q := self.nodes[self.vertex[w]]
            q.pred = append(q.pred, p)
        }
    }
}

func (self *_LengauerTarjan) eval(p *_LtNode) *_LtNode {
    if p.ancestor == nil {
        return p
    } else {
        self.compress(p)
        return p.label
    }
}

func (self *_LengauerTarjan) link(p *_LtNode, q *_LtNode) {
    q.ancestor = p
}

func (self *_LengauerTarjan) compress(p *_LtNode) {
    if p.ancestor.ancestor != nil {
        self.compress(p.ancestor)
        if p.label.semi > p.ancestor.label.semi { p.label = p.ancestor.label }
        p.ancestor = p.ancestor.ancestor
    }
}

// DominatorTree holds the immediate dominators of the blocks reachable from
// the root.
type DominatorTree struct {
    Root        int
    DominatedBy map[int]int
    DominatorOf map[int][]int
}

// Dominates reports whether block a dominates block b.
func (self DominatorTree) Dominates(a int, b int) bool {
    for {
        if a == b {
            return true
        } else if d, ok := self.DominatedBy[b]; !ok {
            return false
        } else {
            b = d
        }
    }
}

func minInt(a int, b int) int {
    if a < b {
        return a
    } else {
        return b
    }
}

// BuildDominatorTree computes the dominators of the blocks reachable from the
// entry block.
func BuildDominatorTree(bm *BlockMap) DominatorTree {
    domby := make(map[int]int)
    domof := make(map[int][]int)

    /* Step 1: Carry out a depth-first search of the problem graph. Number the vertices
     * from 1 to n as they are reached during the search. Initialize the variables used
     * in succeeding steps. */
    lt := newLengauerTarjan()
    lt.dfs(bm, 0)

    /* perform Step 2 and Step 3 simultaneously */
    for i := len(lt.nodes) - 1; i > 0; i-- {
        p := lt.nodes[i]
        q := (*_LtNode)(nil)

        /* Step 2: Compute the semidominators of all vertices by applying Theorem 4.
         * Carry out the computation vertex by vertex in decreasing order by number. */
        for _, v := range p.pred {
            q = lt.eval(v)
            p.semi = minInt(p.semi, q.semi)
        }

        /* link the ancestor */
        lt.link(p.parent, p)
        lt.nodes[p.semi].bucket[p] = struct{}{}

        /* Step 3: Implicitly define the immediate dominator of each vertex by applying Corollary 1 */
        for v := range p.parent.bucket {
            if q = lt.eval(v); q.semi < v.semi {
                v.dom = q
            } else {
                v.dom = p.parent
            }
        }

        /* clear the bucket */
        for v := range p.parent.bucket {
            delete(p.parent.bucket, v)
        }
    }

    /* Step 4: Explicitly define the immediate dominator of each vertex, carrying out the
     * computation vertex by vertex in increasing order by number. */
    for _, p := range lt.nodes[1:] {
        if p.dom.node != lt.nodes[p.semi].node {
            p.dom = p.dom.dom
        }
    }

    /* map the dominator relations */
    for _, p := range lt.nodes[1:] {
        domby[p.node] = p.dom.node
        domof[p.dom.node] = append(domof[p.dom.node], p.node)
    }

    /* construct the dominator tree */
    return DominatorTree {
        Root        : 0,
        DominatorOf : domof,
        DominatedBy : domby,
    }
}
