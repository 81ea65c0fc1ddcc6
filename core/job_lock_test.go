package core

import "testing"

func TestMemoryJobLockSingleFlight(t *testing.T) {
	lock := NewMemoryJobLock()

	if !lock.Acquire("reconcile") {
		t.Fatal("first acquire should succeed")
	}
	if lock.Acquire("reconcile") {
		t.Fatal("second acquire while held should fail")
	}
	if !lock.Acquire("kick_expired") {
		t.Fatal("different job name should acquire independently")
	}

	lock.Release("reconcile")
	if !lock.Acquire("reconcile") {
		t.Fatal("acquire after release should succeed")
	}
}

func TestMemoryJobLockNormalizesNames(t *testing.T) {
	lock := NewMemoryJobLock()

	if !lock.Acquire("  Reconcile ") {
		t.Fatal("first acquire should succeed")
	}
	if lock.Acquire("reconcile") {
		t.Fatal("name matching must ignore case and whitespace")
	}
	lock.Release("RECONCILE")
	if !lock.Acquire("reconcile") {
		t.Fatal("release must use the same normalized key")
	}
}

func TestMemoryJobLockEmptyName(t *testing.T) {
	lock := NewMemoryJobLock()
	if lock.Acquire("") {
		t.Fatal("empty job name must not acquire")
	}
	if lock.Acquire("   ") {
		t.Fatal("blank job name must not acquire")
	}
}

func TestMemoryJobLockReleaseOnPanicPath(t *testing.T) {
	lock := NewMemoryJobLock()

	run := func() {
		if !lock.Acquire("reconcile") {
			t.Fatal("acquire should succeed")
		}
		defer lock.Release("reconcile")
		panic("job blew up")
	}

	func() {
		defer func() {
			if recovered := recover(); recovered == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		run()
	}()

	if !lock.Acquire("reconcile") {
		t.Fatal("lock must be re-acquirable after a panicking run")
	}
}

func TestMemoryJobLockNilReceiver(t *testing.T) {
	var lock *MemoryJobLock
	if lock.Acquire("reconcile") {
		t.Fatal("nil lock must not grant acquisition")
	}
	lock.Release("reconcile")
}
