// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gudalt is the host device runtime underneath the GUDA-LT GEMM
// extension library.
//
// It models a GPU runtime on CPU cores: a Context owns a memory pool and a set
// of Streams, DevicePtr values refer to pool memory, and work submitted to a
// stream runs asynchronously in submission order. Faults raised by stream work
// are reported at the next Synchronize, the way a device reports them.
//
// The packages built on top of it are:
//   - blaslt: the GEMM extension API (problem descriptors, epilogues,
//     heuristic query, execution)
//   - sample: the fused GELU + aux + bias invocation routine and its runner
package gudalt
