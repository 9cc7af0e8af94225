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

package frame

import (
    `fmt`
    `strings`

    `github.com/pkg/errors`

    `github.com/cloudwego/bcflow/internal/bailout`
    `github.com/cloudwego/bcflow/internal/blockmap`
    `github.com/cloudwego/bcflow/internal/bytecode`
    `github.com/cloudwego/bcflow/internal/graph`
)

// Liveness answers the local variable liveness queries the state needs.
type Liveness interface {
    LiveIn(b *blockmap.Block, local int) bool
    LiveOut(b *blockmap.Block, local int) bool
    IsChangedInLoop(loop int, local int) bool
}

// State is the abstract machine state at one point of a method: the local
// variables, the operand stack and the locked objects.
type State struct {
    Rethrow  bool
    g        *graph.Graph
    sp       int
    locals   []Slot
    stack    []Slot
    locks    []graph.Value
    monitors []*graph.MonitorId
}

func NewState(g *graph.Graph, maxLocals int, maxStack int) *State {
    return &State {
        g      : g,
        locals : make([]Slot, maxLocals),
        stack  : make([]Slot, maxStack),
    }
}

// InitializeFromParams stores the receiver (unless static) and the parameters
// into the locals, in declaration order.
func (self *State) InitializeFromParams(kinds []bytecode.Kind, isStatic bool) {
    i := 0
    n := 0

    /* the receiver comes first */
    if !isStatic {
        self.StoreLocal(0, bytecode.K_object, self.g.Param(bytecode.K_object, 0))
        i, n = 1, 1
    }

    /* followed by the declared parameters */
    for _, k := range kinds {
        self.StoreLocal(i, k, self.g.Param(k, n))
        i += k.SlotCount()
        n++
    }
}

func (self *State) Graph()      *graph.Graph { return self.g }
func (self *State) LocalsSize() int          { return len(self.locals) }
func (self *State) StackSize()  int          { return self.sp }
func (self *State) LockDepth()  int          { return len(self.locks) }

func (self *State) Local(i int) Slot { return self.locals[i] }
func (self *State) Stack(i int) Slot { return self.stack[i] }

// Copy returns an independent copy sharing the same graph.
func (self *State) Copy() *State {
    return &State {
        Rethrow  : self.Rethrow,
        g        : self.g,
        sp       : self.sp,
        locals   : append([]Slot(nil), self.locals...),
        stack    : append(make([]Slot, 0, len(self.stack)), self.stack...),
        locks    : append([]graph.Value(nil), self.locks...),
        monitors : append([]*graph.MonitorId(nil), self.monitors...),
    }
}

func (self *State) checkLocal(i int, slots int) {
    if i < 0 || i + slots > len(self.locals) {
        bailout.Throw(bailout.InvalidBytecode, -1, "local %d out of range (max %d)", i, len(self.locals))
    }
}

func checkKind(kind bytecode.Kind, s Slot, what string) graph.Value {
    if !s.IsValue() {
        bailout.Throw(bailout.InvalidBytecode, -1, "%s is %s, not a %s value", what, s, kind)
    } else if s.Value.Kind() != kind {
        bailout.Throw(bailout.InvalidBytecode, -1, "%s is a %s value, not a %s value", what, s.Value.Kind(), kind)
    }
    return s.Value
}

// LoadLocal returns the value of a local, which must be of the given kind.
func (self *State) LoadLocal(i int, kind bytecode.Kind) graph.Value {
    self.checkLocal(i, kind.SlotCount())
    v := checkKind(kind, self.locals[i], fmt.Sprintf("local %d", i))

    /* two-slot values are followed by their continuation */
    if kind.IsTwoSlot() && !self.locals[i + 1].IsContinuation() {
        bailout.Throw(bailout.InvalidBytecode, -1, "local %d is missing the upper half of a %s value", i, kind)
    }
    return v
}

// StoreLocal writes a local. Overwriting either half of a two-slot value
// invalidates the other half.
func (self *State) StoreLocal(i int, kind bytecode.Kind, v graph.Value) {
    self.checkLocal(i, kind.SlotCount())
    checkKind(kind, ValueOf(v), "stored value")

    /* writing the upper half of a two-slot value */
    if self.locals[i].IsContinuation() {
        self.locals[i - 1] = Empty
    }

    /* store the value */
    self.locals[i] = ValueOf(v)
    n := len(self.locals)

    /* mark the second slot, or clear a stale continuation */
    if kind.IsTwoSlot() {
        if i < n - 2 && self.locals[i + 2].IsContinuation() {
            self.locals[i + 2] = Empty
        }
        self.locals[i + 1] = Continuation
    } else if i < n - 1 && self.locals[i + 1].IsContinuation() {
        self.locals[i + 1] = Empty
    }
}

// XPush pushes a raw slot.
func (self *State) XPush(s Slot) {
    if self.sp >= len(self.stack) {
        bailout.Throw(bailout.InvalidBytecode, -1, "operand stack overflow (max %d)", len(self.stack))
    }
    self.stack[self.sp] = s
    self.sp++
}

// XPop pops a raw slot.
func (self *State) XPop() Slot {
    if self.sp == 0 {
        bailout.Throw(bailout.InvalidBytecode, -1, "operand stack underflow")
    }
    self.sp--
    s := self.stack[self.sp]
    self.stack[self.sp] = Empty
    return s
}

// Peek returns the value n slots below the top of the stack.
func (self *State) Peek(n int) graph.Value {
    if n < 0 || n >= self.sp {
        bailout.Throw(bailout.InvalidBytecode, -1, "operand stack underflow")
    }
    if s := self.stack[self.sp - n - 1]; !s.IsValue() {
        bailout.Throw(bailout.InvalidBytecode, -1, "stack slot %d is %s", self.sp - n - 1, s)
    }
    return self.stack[self.sp - n - 1].Value
}

func (self *State) Push(kind bytecode.Kind, v graph.Value) {
    checkKind(kind, ValueOf(v), "pushed value")
    self.XPush(ValueOf(v))
    if kind.IsTwoSlot() {
        self.XPush(Continuation)
    }
}

// PushReturn pushes the result of an invocation, if there is one.
func (self *State) PushReturn(kind bytecode.Kind, v graph.Value) {
    if kind != bytecode.K_void {
        self.Push(kind, v)
    }
}

func (self *State) Pop(kind bytecode.Kind) graph.Value {
    if kind.IsTwoSlot() {
        if s := self.XPop(); !s.IsContinuation() {
            bailout.Throw(bailout.InvalidBytecode, -1, "expected the upper half of a %s value, got %s", kind, s)
        }
    }
    return checkKind(kind, self.XPop(), "popped value")
}

// PopArguments pops the given number of argument slots and returns the
// values in call order, skipping continuations.
func (self *State) PopArguments(argSlots int) []graph.Value {
    var args []graph.Value
    for n := argSlots; n > 0; n-- {
        s := self.XPop()
        if s.IsContinuation() {
            s = self.XPop()
            n--
        }
        if !s.IsValue() {
            bailout.Throw(bailout.InvalidBytecode, -1, "argument slot is %s", s)
        }
        args = append(args, s.Value)
    }

    /* reverse into call order */
    for i, j := 0, len(args) - 1; i < j; i, j = i + 1, j - 1 {
        args[i], args[j] = args[j], args[i]
    }
    return args
}

func (self *State) ClearStack() {
    for i := 0; i < self.sp; i++ {
        self.stack[i] = Empty
    }
    self.sp = 0
}

// PushLock records a monitorenter on obj.
func (self *State) PushLock(obj graph.Value, id *graph.MonitorId) {
    checkKind(bytecode.K_object, ValueOf(obj), "locked object")
    self.locks = append(self.locks, obj)
    self.monitors = append(self.monitors, id)
}

// PopLock removes the innermost lock and returns the locked object.
func (self *State) PopLock() graph.Value {
    n := len(self.locks)
    if n == 0 {
        bailout.Throw(bailout.UnbalancedMonitors, -1, "monitorexit without a matching monitorenter")
    }
    v := self.locks[n - 1]
    self.locks = self.locks[:n - 1]
    self.monitors = self.monitors[:n - 1]
    return v
}

func (self *State) PeekMonitorId() *graph.MonitorId {
    if n := len(self.monitors); n == 0 {
        return nil
    } else {
        return self.monitors[n - 1]
    }
}

// Contains reports whether v occupies any slot of the state.
func (self *State) Contains(v graph.Value) bool {
    for _, s := range self.locals {
        if s.IsValue() && s.Value == v {
            return true
        }
    }
    for _, s := range self.stack[:self.sp] {
        if s.IsValue() && s.Value == v {
            return true
        }
    }
    for _, lv := range self.locks {
        if lv == v {
            return true
        }
    }
    return false
}

// ClearNonLiveLocals empties the locals that are dead at the start (liveIn)
// or at the end of block b.
func (self *State) ClearNonLiveLocals(b *blockmap.Block, lv Liveness, liveIn bool) {
    for i := range self.locals {
        var live bool
        if liveIn {
            live = lv.LiveIn(b, i)
        } else {
            live = lv.LiveOut(b, i)
        }

        /* clearing the upper half clears the whole value */
        if !live {
            if self.locals[i].IsContinuation() {
                self.locals[i - 1] = Empty
            }
            self.locals[i] = Empty
        }
    }
}

// IsCompatibleWith checks that other can be merged into this state.
func (self *State) IsCompatibleWith(other *State) error {
    if len(self.locals) != len(other.locals) {
        return errors.Errorf("mismatch in locals size: %d != %d", len(self.locals), len(other.locals))
    }
    if self.Rethrow != other.Rethrow {
        return errors.New("mismatch in rethrow flag")
    }

    /* stack heights and kinds must match */
    if self.sp != other.sp {
        return bailout.Newf(bailout.InvalidBytecode, -1, "mismatch in stack sizes: %d != %d", self.sp, other.sp)
    }
    for i := 0; i < self.sp; i++ {
        x, y := self.stack[i], other.stack[i]
        if x == y {
            continue
        }
        if !x.IsValue() || !y.IsValue() || x.Value.Kind() != y.Value.Kind() {
            return bailout.Newf(bailout.InvalidBytecode, -1, "mismatch in stack types at %d: %s != %s", i, x, y)
        }
    }

    /* the same monitors must be held */
    if len(self.locks) != len(other.locks) {
        return bailout.Newf(bailout.UnbalancedMonitors, -1, "unbalanced monitors: lock depth %d != %d", len(self.locks), len(other.locks))
    }
    for i, id := range self.monitors {
        if od := other.monitors[i]; id != od && (id == nil || od == nil || id.Depth != od.Depth) {
            return bailout.Newf(bailout.UnbalancedMonitors, -1, "unbalanced monitors: monitor %d does not match", i)
        }
    }
    return nil
}

func isPhiAt(s Slot, merge *graph.Merge) (*graph.Phi, bool) {
    if !s.IsValue() {
        return nil, false
    } else if p, ok := s.Value.(*graph.Phi); !ok || p.Merge != merge {
        return nil, false
    } else {
        return p, true
    }
}

// Merge merges other into this state at merge, which must not count the new
// end yet. Phis of merge get one more input, differing values get a new phi.
func (self *State) Merge(merge *graph.Merge, other *State) {
    if err := self.IsCompatibleWith(other); err != nil {
        panic(err)
    }

    /* merge every slot */
    for i := range self.locals {
        self.locals[i] = self.mergeSlot(self.locals[i], other.locals[i], merge)
    }
    for i := 0; i < self.sp; i++ {
        self.stack[i] = self.mergeSlot(self.stack[i], other.stack[i], merge)
    }
    for i := range self.locks {
        self.locks[i] = self.mergeSlot(ValueOf(self.locks[i]), ValueOf(other.locks[i]), merge).Value
    }

    /* different monitors of the same depth become one new monitor */
    for i, id := range self.monitors {
        if id != other.monitors[i] {
            self.monitors[i] = self.g.MonitorId(id.Depth)
        }
    }
}

func (self *State) mergeSlot(cur Slot, other Slot, merge *graph.Merge) Slot {
    if cur.IsEmpty() {
        return Empty
    }

    /* add an input to the existing phi */
    if phi, ok := isPhiAt(cur, merge); ok {
        if !other.IsValue() || other.Value.Kind() != phi.Kind() {
            phi.AddInput(self.g.DefaultValue(phi.Kind()))
            phi.Dead = true
        } else {
            phi.AddInput(other.Value)
        }
        return cur
    }

    /* same value on both sides */
    if cur == other {
        return cur
    }

    /* incompatible values are dropped */
    if !cur.IsValue() || !other.IsValue() || cur.Value.Kind() != other.Value.Kind() {
        return Empty
    }

    /* loop headers create their phis eagerly */
    if merge.IsLoop {
        panic(errors.Errorf("missing loop phi at B%d: %s != %s", merge.Block, cur, other))
    }

    /* a new phi, the existing ends all carry the current value */
    phi := self.g.Phi(cur.Value.Kind(), merge)
    for i := 0; i < merge.PhiPredecessorCount(); i++ {
        phi.AddInput(cur.Value)
    }
    phi.AddInput(other.Value)
    return ValueOf(phi)
}

// InsertLoopPhis creates a phi for every local changed in the loop (or every
// local when forced or without liveness), every stack slot and every lock.
func (self *State) InsertLoopPhis(lv Liveness, loop int, begin *graph.Merge, force bool) {
    for i := range self.locals {
        if force || lv == nil || lv.IsChangedInLoop(loop, i) {
            self.locals[i] = self.loopPhi(begin, self.locals[i])
        }
    }
    for i := 0; i < self.sp; i++ {
        self.stack[i] = self.loopPhi(begin, self.stack[i])
    }
    for i := range self.locks {
        self.locks[i] = self.loopPhi(begin, ValueOf(self.locks[i])).Value
    }
}

func (self *State) loopPhi(begin *graph.Merge, s Slot) Slot {
    if !s.IsValue() {
        return s
    } else if _, ok := isPhiAt(s, begin); ok {
        return s
    }
    phi := self.g.Phi(s.Value.Kind(), begin)
    phi.AddInput(s.Value)
    return ValueOf(phi)
}

// InsertLoopProxies wraps every value leaving the loop through exit that was
// created inside the loop, given the state at the loop entry.
func (self *State) InsertLoopProxies(exit *graph.LoopExit, entry *State) {
    for i := range self.locals {
        self.locals[i] = self.proxy(exit, entry, self.locals[i])
    }
    for i := 0; i < self.sp; i++ {
        self.stack[i] = self.proxy(exit, entry, self.stack[i])
    }
    for i := range self.locks {
        self.locks[i] = self.proxy(exit, entry, ValueOf(self.locks[i])).Value
    }
}

func (self *State) proxy(exit *graph.LoopExit, entry *State, s Slot) Slot {
    if !s.IsValue() {
        return s
    }
    if _, ok := isPhiAt(s, exit.Loop); ok || !entry.Contains(s.Value) {
        return ValueOf(self.g.Proxy(s.Value, exit))
    }
    return s
}

func slots(v []Slot) string {
    buf := make([]string, len(v))
    for i, s := range v {
        buf[i] = s.String()
    }
    return strings.Join(buf, " ")
}

func (self *State) String() string {
    locks := make([]string, len(self.locks))
    for i, v := range self.locks {
        locks[i] = fmt.Sprintf("v%d", v.Id())
    }
    return fmt.Sprintf(
        "locals: [%s] stack: [%s] locks: [%s]",
        slots(self.locals),
        slots(self.stack[:self.sp]),
        strings.Join(locks, " "),
    )
}
