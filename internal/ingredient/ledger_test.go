package ingredient_test

import (
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/teamalpha/aichef/internal/ingredient"
)

// mockStore is a mock implementation of ingredient.Store
type mockStore struct {
	mu        sync.Mutex
	entries   map[ingredient.Label]ingredient.Entry
	saveErr   error
	loadErr   error
	deleteErr error
	saves     int

	// when set, SaveEntry signals entered and waits for release
	entered chan struct{}
	release chan struct{}
}

func newMockStore() *mockStore {
	return &mockStore{entries: make(map[ingredient.Label]ingredient.Entry)}
}

func (m *mockStore) SaveEntry(entry *ingredient.Entry) error {
	if m.release != nil {
		m.entered <- struct{}{}
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.entries[entry.Label] = *entry
	return nil
}

func (m *mockStore) LoadEntries() ([]ingredient.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make([]ingredient.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, nil
}

func (m *mockStore) DeleteEntry(label ingredient.Label) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.entries, label)
	return nil
}

func (m *mockStore) Close() error {
	return nil
}

// mockTimeSource is a mock implementation of ingredient.TimeSource
type mockTimeSource struct {
	now time.Time
}

func (m *mockTimeSource) Now() time.Time {
	return m.now
}

var _ = Describe("Ledger", func() {
	var ledger *ingredient.Ledger

	BeforeEach(func() {
		ledger = ingredient.NewLedger()
		ledger.SetTimeSource(&mockTimeSource{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)})
	})

	Describe("Add", func() {
		It("inserts a new label", func() {
			Expect(ledger.Add("tomato", ingredient.OriginCamera)).To(BeTrue())
			Expect(ledger.Contains("tomato")).To(BeTrue())
		})

		It("is a no-op for a label already present", func() {
			Expect(ledger.Add("tomato", ingredient.OriginCamera)).To(BeTrue())
			Expect(ledger.Add("tomato", ingredient.OriginSearch)).To(BeFalse())
			Expect(ledger.Len()).To(Equal(1))
			Expect(ledger.Snapshot()[0].Origin).To(Equal(ingredient.OriginCamera))
		})

		It("refuses malformed labels", func() {
			Expect(ledger.Add("Tomato!", ingredient.OriginSearch)).To(BeFalse())
			Expect(ledger.Len()).To(BeZero())
		})

		It("stamps the entry with the current time", func() {
			ledger.Add("tomato", ingredient.OriginCamera)
			Expect(ledger.Snapshot()[0].AddedAt).To(Equal(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)))
		})

		It("keeps a single copy under concurrent adds", func() {
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ledger.Add("bell_pepper", ingredient.OriginSearch)
				}()
			}
			wg.Wait()
			Expect(ledger.Labels()).To(Equal([]ingredient.Label{"bell_pepper"}))
		})
	})

	Describe("Snapshot", func() {
		It("returns entries in insertion order", func() {
			ledger.Add("onion", ingredient.OriginCamera)
			ledger.Add("carrot", ingredient.OriginSearch)
			ledger.Add("apple", ingredient.OriginCamera)
			Expect(ledger.Labels()).To(Equal([]ingredient.Label{"onion", "carrot", "apple"}))
		})

		It("returns an empty slice for an empty ledger", func() {
			Expect(ledger.Snapshot()).To(BeEmpty())
		})
	})

	Describe("Remove", func() {
		BeforeEach(func() {
			ledger.Add("onion", ingredient.OriginCamera)
			ledger.Add("carrot", ingredient.OriginCamera)
		})

		It("removes a present label", func() {
			Expect(ledger.Remove("onion")).To(BeTrue())
			Expect(ledger.Labels()).To(Equal([]ingredient.Label{"carrot"}))
		})

		It("reports a missing label", func() {
			Expect(ledger.Remove("apple")).To(BeFalse())
		})

		It("allows the label to be added again", func() {
			ledger.Remove("onion")
			Expect(ledger.Add("onion", ingredient.OriginSearch)).To(BeTrue())
			Expect(ledger.Labels()).To(Equal([]ingredient.Label{"carrot", "onion"}))
		})
	})

	Describe("SetChecked", func() {
		It("marks a listed ingredient", func() {
			ledger.Add("onion", ingredient.OriginCamera)
			Expect(ledger.SetChecked("onion", true)).To(BeTrue())
			Expect(ledger.Snapshot()[0].Checked).To(BeTrue())
		})

		It("reports a missing label", func() {
			Expect(ledger.SetChecked("onion", true)).To(BeFalse())
		})
	})

	Describe("with a store", func() {
		var store *mockStore

		BeforeEach(func() {
			store = newMockStore()
			store.entries["onion"] = ingredient.Entry{ingredient.Label: "onion", Origin: ingredient.OriginCamera, Sequence: 4}
			store.entries["carrot"] = ingredient.Entry{ingredient.Label: "carrot", Origin: ingredient.OriginSearch, Sequence: 1}
			var err error
			ledger, err = ingredient.NewLedgerFromStore(store, nil)
			Expect(err).NotTo(HaveOccurred())
		})

		It("restores stored entries", func() {
			Expect(ledger.Contains("onion")).To(BeTrue())
			Expect(ledger.Contains("carrot")).To(BeTrue())
		})

		It("writes new entries through", func() {
			ledger.Add("apple", ingredient.OriginCamera)
			Expect(store.entries).To(HaveKey(ingredient.Label("apple")))
			Expect(store.entries[ingredient.Label("apple")].Sequence).To(Equal(uint64(5)))
		})

		It("does not write duplicates", func() {
			ledger.Add("onion", ingredient.OriginCamera)
			Expect(store.saves).To(BeZero())
		})

		It("deletes removed entries", func() {
			ledger.Remove("onion")
			Expect(store.entries).NotTo(HaveKey(ingredient.Label("onion")))
		})

		It("applies a remove after a slow save to the store in order", func() {
			ledger.Add("tomato", ingredient.OriginCamera)
			store.entered = make(chan struct{}, 1)
			store.release = make(chan struct{})

			checked := make(chan bool, 1)
			go func() {
				checked <- ledger.SetChecked("tomato", true)
			}()
			Eventually(store.entered).Should(Receive())

			removed := make(chan bool, 1)
			go func() {
				removed <- ledger.Remove("tomato")
			}()
			Consistently(removed, 50*time.Millisecond).ShouldNot(Receive())
			Expect(ledger.Contains("tomato")).To(BeTrue())

			close(store.release)
			Eventually(checked).Should(Receive(BeTrue()))
			Eventually(removed).Should(Receive(BeTrue()))

			restored, err := ingredient.NewLedgerFromStore(store, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(restored.Contains("tomato")).To(BeFalse())
		})

		It("keeps the in-memory entry when the store fails", func() {
			store.saveErr = errors.New("disk full")
			Expect(ledger.Add("apple", ingredient.OriginCamera)).To(BeTrue())
			Expect(ledger.Contains("apple")).To(BeTrue())
		})

		When("loading fails", func() {
			It("returns the error", func() {
				setupErr := errors.New("load error")
				failing := newMockStore()
				failing.loadErr = setupErr
				_, err := ingredient.NewLedgerFromStore(failing, nil)
				Expect(err).To(MatchError(setupErr))
			})
		})
	})
})
