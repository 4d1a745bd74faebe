// Copyright 2026 The checkcaps Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sync

import (
	"reflect"
	gosync "sync"

	"github.com/google/checkcaps/pkg/preempt"
	"github.com/google/checkcaps/pkg/sync/locking"
)

// RWLock wraps a read-write lock with capability-annotated entry points
// across four calling contexts: plain, interrupt-disabling (IRQ),
// bottom-half-disabling (BH) and interrupt-save/restore (IRQSave).
//
// Blocking behavior is delegated entirely to the wrapped primitive: write
// acquisition blocks until no holder of any kind remains, read acquisition
// blocks until no exclusive holder remains and admits concurrent readers.
// Try variants never block and leave the lock state unchanged on failure.
// None of these operations return errors.
//
// Context transitions come from package preempt. They are opaque to the
// analyzer and are paired in reverse order around the base operation:
// disable before acquiring, enable after releasing.
type RWLock struct {
	mu gosync.RWMutex
}

// rwLockClass is the ordering-validator class shared by all RWLock
// instances. Only exclusive acquisitions are order-tracked; shared holds may
// legitimately overlap within one goroutine.
var rwLockClass = locking.NewMutexClass(reflect.TypeOf(RWLock{}))

// ReadLock acquires rw shared.
//
// +checkcapsacquireshared:rw.mu
func (rw *RWLock) ReadLock() {
	rw.mu.RLock()
}

// ReadUnlock releases a shared hold of rw.
//
// +checkcapsreleaseshared:rw.mu
func (rw *RWLock) ReadUnlock() {
	rw.mu.RUnlock()
}

// WriteLock acquires rw exclusively.
//
// +checkcapsacquire:rw.mu
func (rw *RWLock) WriteLock() {
	locking.AddGLock(rwLockClass, -1)
	rw.mu.Lock()
}

// WriteUnlock releases an exclusive hold of rw.
//
// +checkcapsrelease:rw.mu
func (rw *RWLock) WriteUnlock() {
	rw.mu.Unlock()
	locking.DelGLock(rwLockClass, -1)
}

// TryReadLock acquires rw shared if that is possible without blocking. The
// hold exists only when true is returned.
//
// +checkcapstryshared:rw.mu
func (rw *RWLock) TryReadLock() bool {
	return rw.mu.TryRLock()
}

// TryWriteLock acquires rw exclusively if that is possible without blocking.
//
// +checkcapstry:rw.mu
func (rw *RWLock) TryWriteLock() bool {
	if !rw.mu.TryLock() {
		return false
	}
	locking.AddGLock(rwLockClass, -1)
	return true
}

// ReadLockIRQ disables interrupts, then acquires rw shared.
//
// +checkcapsacquireshared:rw.mu
func (rw *RWLock) ReadLockIRQ() {
	preempt.DisableIRQ()
	rw.mu.RLock()
}

// ReadUnlockIRQ releases a shared hold of rw, then re-enables interrupts.
//
// +checkcapsreleaseshared:rw.mu
func (rw *RWLock) ReadUnlockIRQ() {
	rw.mu.RUnlock()
	preempt.EnableIRQ()
}

// WriteLockIRQ disables interrupts, then acquires rw exclusively.
//
// +checkcapsacquire:rw.mu
func (rw *RWLock) WriteLockIRQ() {
	preempt.DisableIRQ()
	locking.AddGLock(rwLockClass, -1)
	rw.mu.Lock()
}

// WriteUnlockIRQ releases an exclusive hold of rw, then re-enables
// interrupts.
//
// +checkcapsrelease:rw.mu
func (rw *RWLock) WriteUnlockIRQ() {
	rw.mu.Unlock()
	locking.DelGLock(rwLockClass, -1)
	preempt.EnableIRQ()
}

// ReadLockBH disables bottom halves, then acquires rw shared.
//
// +checkcapsacquireshared:rw.mu
func (rw *RWLock) ReadLockBH() {
	preempt.DisableBH()
	rw.mu.RLock()
}

// ReadUnlockBH releases a shared hold of rw, then re-enables bottom halves.
//
// +checkcapsreleaseshared:rw.mu
func (rw *RWLock) ReadUnlockBH() {
	rw.mu.RUnlock()
	preempt.EnableBH()
}

// WriteLockBH disables bottom halves, then acquires rw exclusively.
//
// +checkcapsacquire:rw.mu
func (rw *RWLock) WriteLockBH() {
	preempt.DisableBH()
	locking.AddGLock(rwLockClass, -1)
	rw.mu.Lock()
}

// WriteUnlockBH releases an exclusive hold of rw, then re-enables bottom
// halves.
//
// +checkcapsrelease:rw.mu
func (rw *RWLock) WriteUnlockBH() {
	rw.mu.Unlock()
	locking.DelGLock(rwLockClass, -1)
	preempt.EnableBH()
}

// ReadLockIRQSave saves and disables interrupt state, then acquires rw
// shared. The returned flags must be passed to the matching
// ReadUnlockIRQRestore.
//
// +checkcapsacquireshared:rw.mu
func (rw *RWLock) ReadLockIRQSave() preempt.Flags {
	flags := preempt.SaveIRQ()
	rw.mu.RLock()
	return flags
}

// ReadUnlockIRQRestore releases a shared hold of rw, then restores the saved
// interrupt state.
//
// +checkcapsreleaseshared:rw.mu
func (rw *RWLock) ReadUnlockIRQRestore(flags preempt.Flags) {
	rw.mu.RUnlock()
	preempt.RestoreIRQ(flags)
}

// WriteLockIRQSave saves and disables interrupt state, then acquires rw
// exclusively.
//
// +checkcapsacquire:rw.mu
func (rw *RWLock) WriteLockIRQSave() preempt.Flags {
	flags := preempt.SaveIRQ()
	locking.AddGLock(rwLockClass, -1)
	rw.mu.Lock()
	return flags
}

// WriteUnlockIRQRestore releases an exclusive hold of rw, then restores the
// saved interrupt state.
//
// +checkcapsrelease:rw.mu
func (rw *RWLock) WriteUnlockIRQRestore(flags preempt.Flags) {
	rw.mu.Unlock()
	locking.DelGLock(rwLockClass, -1)
	preempt.RestoreIRQ(flags)
}

// TryWriteLockIRQSave saves and disables interrupt state, then attempts an
// exclusive acquisition. On failure the interrupt state is restored before
// returning, so the caller holds neither the lock nor the disabled context.
//
// +checkcapstry:rw.mu
func (rw *RWLock) TryWriteLockIRQSave() (preempt.Flags, bool) {
	flags := preempt.SaveIRQ()
	if rw.mu.TryLock() {
		locking.AddGLock(rwLockClass, -1)
		return flags, true
	}
	preempt.RestoreIRQ(flags)
	return 0, false
}
