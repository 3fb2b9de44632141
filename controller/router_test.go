package controller

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/side8/k8s-operator/object"
	"github.com/side8/k8s-operator/scheduler"
)

// fakeReconciler records the snapshots it's given. When gate is set, every
// reconciliation blocks until it receives from gate.
type fakeReconciler struct {
	gate chan struct{}

	mu         sync.Mutex
	calls      map[types.UID][]string
	inFlight   map[types.UID]int
	maxPerUID  int
	running    int
	maxRunning int
	identities map[types.UID]object.Identity
	ctxErrs    []error
}

func newFakeReconciler(gated bool) *fakeReconciler {
	f := &fakeReconciler{
		calls:      map[types.UID][]string{},
		inFlight:   map[types.UID]int{},
		identities: map[types.UID]object.Identity{},
	}
	if gated {
		f.gate = make(chan struct{})
	}
	return f
}

func (f *fakeReconciler) Reconcile(ctx context.Context, id object.Identity, obj *unstructured.Unstructured) error {
	f.mu.Lock()
	f.calls[id.UID] = append(f.calls[id.UID], obj.GetResourceVersion())
	f.identities[id.UID] = id
	f.inFlight[id.UID]++
	if f.inFlight[id.UID] > f.maxPerUID {
		f.maxPerUID = f.inFlight[id.UID]
	}
	f.running++
	if f.running > f.maxRunning {
		f.maxRunning = f.running
	}
	f.mu.Unlock()

	if f.gate != nil {
		<-f.gate
	}

	f.mu.Lock()
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	f.inFlight[id.UID]--
	f.running--
	f.mu.Unlock()
	return nil
}

func (f *fakeReconciler) callsFor(uid types.UID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls[uid]...)
}

func (f *fakeReconciler) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += len(c)
	}
	return n
}

func (f *fakeReconciler) runningNow() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func resourceSnapshot(uid, rv string) *unstructured.Unstructured {
	obj := &unstructured.Unstructured{}
	obj.SetAPIVersion("side8.io/v1")
	obj.SetKind("Database")
	obj.SetNamespace("default")
	obj.SetName("db-" + uid)
	obj.SetUID(types.UID(uid))
	obj.SetResourceVersion(rv)
	return obj
}

var _ = Describe("Router", func() {
	var (
		ctx     context.Context
		cancel  context.CancelFunc
		rec     *fakeReconciler
		fw      *watch.FakeWatcher
		router  *Router
		runErr  chan error
		limit   int
		gated   bool
		release func()
	)

	// flush returns once the router has routed every event sent before it.
	flush := func() {
		fw.Action(watch.Bookmark, resourceSnapshot("flush", "0"))
	}

	BeforeEach(func() {
		limit = scheduler.DefaultLimit
		gated = false
	})

	JustBeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		rec = newFakeReconciler(gated)
		var once sync.Once
		release = func() {
			once.Do(func() {
				if rec.gate != nil {
					close(rec.gate)
				}
			})
		}

		sched := scheduler.New(scheduler.WithLimit(limit))
		go func() {
			defer GinkgoRecover()
			_ = sched.Run(ctx)
		}()

		fw = watch.NewFake()
		router = NewRouter(rec, sched, nil)
		runErr = make(chan error, 1)
		go func() {
			runErr <- router.Run(ctx, fw)
		}()
	})

	AfterEach(func() {
		release()
		cancel()
	})

	Context("with a single resource", func() {
		It("claims the queue and releases it when drained", func() {
			fw.Add(resourceSnapshot("a", "1"))

			Eventually(func() []string { return rec.callsFor("a") }).Should(Equal([]string{"1"}))
			Eventually(router.Len).Should(Equal(0))

			// A later event starts a new worker.
			fw.Modify(resourceSnapshot("a", "2"))
			Eventually(func() []string { return rec.callsFor("a") }).Should(Equal([]string{"1", "2"}))
			Eventually(router.Len).Should(Equal(0))
		})

		It("passes the identity captured at spawn time", func() {
			fw.Add(resourceSnapshot("a", "1"))

			Eventually(func() []string { return rec.callsFor("a") }).Should(HaveLen(1))
			rec.mu.Lock()
			id := rec.identities["a"]
			rec.mu.Unlock()
			Expect(id.Namespace).To(Equal("default"))
			Expect(id.Name).To(Equal("db-a"))
			Expect(id.UID).To(Equal(types.UID("a")))
		})
	})

	Context("while a reconciliation is running", func() {
		BeforeEach(func() {
			gated = true
		})

		It("coalesces queued snapshots to the latest", func() {
			fw.Add(resourceSnapshot("a", "1"))
			Eventually(rec.runningNow).Should(Equal(1))

			fw.Modify(resourceSnapshot("a", "2"))
			fw.Modify(resourceSnapshot("a", "3"))
			fw.Modify(resourceSnapshot("a", "4"))
			flush()
			Expect(router.Len()).To(Equal(1))

			release()
			Eventually(func() []string { return rec.callsFor("a") }).Should(Equal([]string{"1", "4"}))
			Eventually(router.Len).Should(Equal(0))
		})

		It("never runs two reconciliations of a resource at once", func() {
			fw.Add(resourceSnapshot("a", "1"))
			Eventually(rec.runningNow).Should(Equal(1))

			for i := 0; i < 20; i++ {
				fw.Modify(resourceSnapshot("a", "2"))
			}
			flush()
			Consistently(rec.runningNow, 200*time.Millisecond).Should(Equal(1))

			release()
			Eventually(router.Len).Should(Equal(0))
			rec.mu.Lock()
			defer rec.mu.Unlock()
			Expect(rec.maxPerUID).To(Equal(1))
		})

		It("drops pending snapshots of a deleted resource", func() {
			fw.Add(resourceSnapshot("a", "1"))
			Eventually(rec.runningNow).Should(Equal(1))

			fw.Modify(resourceSnapshot("a", "2"))
			fw.Delete(resourceSnapshot("a", "3"))
			flush()

			release()
			Eventually(router.Len).Should(Equal(0))
			Consistently(func() []string { return rec.callsFor("a") }, 200*time.Millisecond).Should(Equal([]string{"1"}))
		})

		It("lets a running reconciliation finish on shutdown", func() {
			fw.Add(resourceSnapshot("a", "1"))
			Eventually(rec.runningNow).Should(Equal(1))
			fw.Modify(resourceSnapshot("a", "2"))
			flush()

			cancel()
			Eventually(runErr).Should(Receive(Equal(context.Canceled)))
			release()

			Eventually(router.Len).Should(Equal(0))
			Expect(rec.callsFor("a")).To(Equal([]string{"1"}))
			rec.mu.Lock()
			defer rec.mu.Unlock()
			Expect(rec.ctxErrs).To(Equal([]error{nil}))
		})
	})

	Context("with more resources than workers", func() {
		BeforeEach(func() {
			gated = true
			limit = 10
		})

		It("admits at most the limit and runs the rest later", func() {
			uids := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"}
			for _, uid := range uids {
				fw.Add(resourceSnapshot(uid, "1"))
			}

			Eventually(rec.runningNow).Should(Equal(10))
			Consistently(rec.runningNow, 200*time.Millisecond).Should(Equal(10))
			Expect(router.Len()).To(Equal(len(uids)))

			release()
			Eventually(rec.totalCalls).Should(Equal(len(uids)))
			Eventually(router.Len).Should(Equal(0))
			rec.mu.Lock()
			defer rec.mu.Unlock()
			Expect(rec.maxRunning).To(Equal(10))
		})
	})

	Context("with unexpected events", func() {
		It("skips objects without a uid", func() {
			obj := resourceSnapshot("", "1")
			fw.Add(obj)
			flush()
			Consistently(rec.totalCalls, 100*time.Millisecond).Should(Equal(0))
			Expect(router.Len()).To(Equal(0))
		})

		It("skips objects that aren't unstructured", func() {
			fw.Add(&corev1.Pod{})
			flush()
			Consistently(rec.totalCalls, 100*time.Millisecond).Should(Equal(0))
		})

		It("ignores deletion of unknown resources", func() {
			fw.Delete(resourceSnapshot("z", "1"))
			flush()
			Expect(router.Len()).To(Equal(0))
		})
	})

	Context("when the stream ends", func() {
		It("returns ErrWatchClosed", func() {
			fw.Stop()
			Eventually(runErr).Should(Receive(Equal(ErrWatchClosed)))
		})

		It("returns the context error on cancel", func() {
			cancel()
			Eventually(runErr).Should(Receive(Equal(context.Canceled)))
		})
	})
})
