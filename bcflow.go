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

// Package bcflow builds the control-flow graph, loop structure, liveness and
// abstract frame states of a stack-machine bytecode method, which is what a
// compiler front-end needs before building its IR.
package bcflow

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/cloudwego/bcflow/internal/bailout"
	"github.com/cloudwego/bcflow/internal/blockmap"
	"github.com/cloudwego/bcflow/internal/bytecode"
	"github.com/cloudwego/bcflow/internal/liveness"
	"github.com/cloudwego/bcflow/internal/opts"
	"github.com/cloudwego/bcflow/internal/parser"
	"github.com/cloudwego/bcflow/internal/stats"
)

type (
	Method   = bytecode.Method
	BlockMap = blockmap.BlockMap
	Block    = blockmap.Block
	Liveness = liveness.Liveness
	Result   = parser.Result
)

// Analyze builds the block map of m and computes the liveness of its locals.
func Analyze(m Method, options ...Option) (*BlockMap, *Liveness, error) {
	o := makeOptions(options)
	return analyze(m, &o)
}

// Compile runs the whole front-end on m.
func Compile(m Method, options ...Option) (*Result, error) {
	o := makeOptions(options)
	return compile(m, &o)
}

func analyze(m Method, o *opts.Options) (*BlockMap, *Liveness, error) {
	bm, err := blockmap.Build(m, o)
	if err != nil {
		return nil, nil, fail(m, o, err)
	}

	/* count the blocks and loops */
	stats.Blocks.Add(bm.Len())
	stats.Loops.Add(bm.LoopCount())

	/* liveness of the locals */
	lv, err := liveness.Compute(bm, o)
	if err != nil {
		return nil, nil, fail(m, o, err)
	}

	/* check the fixpoint if required */
	if o.Verify {
		if err = lv.Verify(); err != nil {
			return nil, nil, fail(m, o, err)
		}
	}
	return bm, lv, nil
}

func compile(m Method, o *opts.Options) (*Result, error) {
	stats.Compiles.Inc()
	bm, lv, err := analyze(m, o)
	if err != nil {
		return nil, err
	}

	/* simulate the instructions */
	ret, err := parser.Parse(bm, lv, o)
	if err != nil {
		return nil, fail(m, o, err)
	}
	return ret, nil
}

func fail(m Method, o *opts.Options, err error) error {
	stats.Bailout(err)
	o.Debug("msg", "compilation failed", "method", m.Name(), "err", err)
	return errors.Wrapf(err, "bcflow: cannot compile %s", m.Name())
}

type _Entry struct {
	res *Result
	err error
}

// Compiler caches the results of Compile, bailouts included. It is safe for
// concurrent use, the cached results are shared and must not be modified.
type Compiler struct {
	opts  opts.Options
	cache *lru.Cache[uint64, _Entry]
}

// NewCompiler creates a Compiler keeping at most opts.CacheSize results.
func NewCompiler(options ...Option) *Compiler {
	cache, err := lru.New[uint64, _Entry](opts.CacheSize)
	if err != nil {
		panic(err)
	}
	return &Compiler{
		opts:  makeOptions(options),
		cache: cache,
	}
}

// Len returns the number of cached results.
func (self *Compiler) Len() int {
	return self.cache.Len()
}

// Purge drops every cached result.
func (self *Compiler) Purge() {
	self.cache.Purge()
	stats.CacheSize.Set(0)
}

// Compile returns the cached result of m, compiling it on a miss.
func (self *Compiler) Compile(m Method) (*Result, error) {
	key := Fingerprint(m)
	if e, ok := self.cache.Get(key); ok {
		stats.CacheHits.Inc()
		return e.res, e.err
	}

	/* not compiled yet */
	stats.CacheMisses.Inc()
	res, err := compile(m, &self.opts)

	/* a failed method fails the same way next time */
	self.cache.Add(key, _Entry{res: res, err: err})
	stats.CacheSize.Set(float64(self.cache.Len()))
	return res, err
}

// Fingerprint hashes everything of m the front-end looks at. Of the constant
// pool, only the kinds resolved for the instructions of m are hashed.
func Fingerprint(m Method) uint64 {
	var buf [4]byte
	h := xxhash.New()

	/* write a 32-bit integer */
	u32 := func(v int) {
		binary.LittleEndian.PutUint32(buf[:], uint32(v))
		_, _ = h.Write(buf[:])
	}

	/* method header */
	_, _ = h.WriteString(m.Name())
	u32(len(m.Code()))
	_, _ = h.Write(m.Code())
	u32(m.MaxLocals())
	u32(m.MaxStack())

	/* signature */
	if m.IsStatic() {
		u32(1)
	} else {
		u32(0)
	}
	u32(len(m.Params()))
	for _, k := range m.Params() {
		u32(int(k))
	}

	/* exception table */
	for _, eh := range m.Handlers() {
		u32(eh.StartBci)
		u32(eh.EndBci)
		u32(eh.HandlerBci)
		u32(eh.CatchType)
	}

	/* resolved constant pool entries */
	hashPool(m, u32)
	return h.Sum64()
}

func hashPool(m Method, u32 func(int)) {
	var err error
	defer bailout.Rescue(&err)
	cp := m.Pool()

	/* malformed code bails out in the front-end anyway */
	for st := bytecode.NewStream(m.Code()); !st.Done(); st.Next() {
		switch op := st.CurrentBC(); {
		case op == bytecode.OP_ldc:
			u32(int(cp.ConstantKind(st.ReadUByte())))
		case op == bytecode.OP_ldc_w || op == bytecode.OP_ldc2_w:
			u32(int(cp.ConstantKind(st.ReadCPI())))
		case op >= bytecode.OP_getstatic && op <= bytecode.OP_putfield:
			u32(int(cp.FieldKind(st.ReadCPI())))
		case op.IsInvoke():
			sig := cp.MethodSignature(st.ReadCPI())
			u32(len(sig.Params))
			for _, k := range sig.Params {
				u32(int(k))
			}
			u32(int(sig.Return))
		}
	}
}
