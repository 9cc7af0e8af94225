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

package parser

import (
    . `github.com/cloudwego/bcflow/internal/bytecode`
)

type _Conversion struct {
    from Kind
    to   Kind
}

var (
    _NumKinds   = [4]Kind { K_int, K_long, K_float, K_double }
    _IntKinds   = [2]Kind { K_int, K_long }
    _CmpKinds   = [5]Kind { K_long, K_float, K_float, K_double, K_double }
    _ArrayKinds = [8]Kind { K_int, K_long, K_float, K_double, K_object, K_int, K_int, K_int }
)

var _Conversions = [...]_Conversion {
    OP_i2l - OP_i2l: { K_int    , K_long   },
    OP_i2f - OP_i2l: { K_int    , K_float  },
    OP_i2d - OP_i2l: { K_int    , K_double },
    OP_l2i - OP_i2l: { K_long   , K_int    },
    OP_l2f - OP_i2l: { K_long   , K_float  },
    OP_l2d - OP_i2l: { K_long   , K_double },
    OP_f2i - OP_i2l: { K_float  , K_int    },
    OP_f2l - OP_i2l: { K_float  , K_long   },
    OP_f2d - OP_i2l: { K_float  , K_double },
    OP_d2i - OP_i2l: { K_double , K_int    },
    OP_d2l - OP_i2l: { K_double , K_long   },
    OP_d2f - OP_i2l: { K_double , K_float  },
    OP_i2b - OP_i2l: { K_int    , K_int    },
    OP_i2c - OP_i2l: { K_int    , K_int    },
    OP_i2s - OP_i2l: { K_int    , K_int    },
}

func between(op OpCode, lo OpCode, hi OpCode) bool {
    return op >= lo && op <= hi
}
