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

package blockmap

import (
    `fmt`
    `strings`

    `github.com/oleiade/lane`
)

func dotLabel(b *Block) string {
    var meta []string
    meta = append(meta, fmt.Sprintf("B%d %s", b.Id, b.Kind))

    /* block range */
    if b.HasCode() {
        meta = append(meta, fmt.Sprintf("bci %d..%d", b.StartBci, b.EndBci))
    } else if b.IsDispatch() {
        meta = append(meta, fmt.Sprintf("handler #%d @%d", b.HandlerIndex, b.DeoptBci))
    }

    /* loop information */
    if b.IsLoopHeader {
        meta = append(meta, fmt.Sprintf("loop %d, end B%d", b.LoopId, b.LoopEnd))
    }
    if b.Loops != 0 {
        meta = append(meta, "loops = " + b.Loops.String())
    }
    if !b.Scope.IsEmpty() {
        meta = append(meta, "scope = " + b.Scope.String())
    }
    return strings.Join(meta, "\\n")
}

// Dot renders the reachable part of the graph in Graphviz format.
func (self *BlockMap) Dot() string {
    q := lane.NewQueue()
    n := make(map[int]bool)
    buf := []string {
        "digraph CFG {",
        `    graph [ fontname = "Fira Code" ]`,
        `    node [ fontname = "Fira Code" fontsize="16" shape = "box" ]`,
        `    edge [ fontname = "Fira Code" ]`,
        `    START [ shape = "circle" ]`,
        `    START -> B0`,
    }

    /* breadth-first from the entry */
    n[0] = true
    for q.Enqueue(0); !q.Empty(); {
        p := self.Blocks[q.Dequeue().(int)]
        buf = append(buf, fmt.Sprintf(`    B%d [ label = "%s" ]`, p.Id, dotLabel(p)))
        for i, s := range p.Successors {
            style := ""
            if self.Blocks[s].IsDispatch() || p.IsDispatch() {
                style = ` [ style = "dashed" ]`
            } else if s <= p.Id {
                style = fmt.Sprintf(` [ label = "back %d" ]`, i)
            }
            buf = append(buf, fmt.Sprintf(`    B%d -> B%d%s`, p.Id, s, style))
            if !n[s] {
                n[s] = true
                q.Enqueue(s)
            }
        }
    }

    /* the synthetic blocks */
    for _, b := range self.Blocks[len(self.Blocks) - 2:] {
        buf = append(buf, fmt.Sprintf(`    B%d [ label = "%s" shape = "doublecircle" ]`, b.Id, dotLabel(b)))
    }
    buf = append(buf, "}")
    return strings.Join(buf, "\n")
}
