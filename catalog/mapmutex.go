/*
	Photoledger
	Copyright (c) 2024 The Photoledger Authors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package catalog

import "sync"

// mapMutex is a mutex that locks by key rather than globally, so that work
// on one shard directory never waits on work in another.
// Adapted from https://medium.com/@petrlozhkin/kmutex-lock-mutex-by-unique-id-408467659c24
type mapMutex struct {
	cond *sync.Cond
	held map[string]struct{}
}

func newMapMutex() *mapMutex {
	return &mapMutex{
		cond: sync.NewCond(new(sync.Mutex)),
		held: make(map[string]struct{}),
	}
}

func (mmu *mapMutex) Lock(key string) {
	mmu.cond.L.Lock()
	defer mmu.cond.L.Unlock()
	for {
		if _, busy := mmu.held[key]; !busy {
			break
		}
		mmu.cond.Wait()
	}
	mmu.held[key] = struct{}{}
}

func (mmu *mapMutex) Unlock(key string) {
	mmu.cond.L.Lock()
	defer mmu.cond.L.Unlock()
	delete(mmu.held, key)
	mmu.cond.Broadcast()
}
