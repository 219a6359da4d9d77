package emitter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/sgscope/pkg/usage"
)

func makeReport(sgID string, results ...usage.Result) usage.Report {
	return usage.NewReport(sgID, "us-east-1", time.Now(), results)
}

func found(provider string, ids ...string) usage.Result {
	return usage.Succeeded(provider, provider, usage.Matches{IDs: ids})
}

func failed(provider string) usage.Result {
	return usage.Failed(provider, provider, usage.Transient(errors.New("throttled")))
}

func TestDiffTracker_FirstScan(t *testing.T) {
	tracker := NewDiffTracker()
	report := makeReport("sg-1", found("ec2", "i-001", "i-002"))

	// First scan should return nil (no diffs on baseline)
	diffs := tracker.ComputeDiff(report)
	assert.Nil(t, diffs, "first scan should return nil")

	tracker.Update(report)
}

func TestDiffTracker_NoChanges(t *testing.T) {
	tracker := NewDiffTracker()
	report := makeReport("sg-1", found("ec2", "i-001", "i-002"))

	tracker.Update(report)

	diffs := tracker.ComputeDiff(report)
	require.NotNil(t, diffs)
	assert.Empty(t, diffs, "identical reports should produce no diffs")
}

func TestDiffTracker_Attached(t *testing.T) {
	tracker := NewDiffTracker()
	tracker.Update(makeReport("sg-1", found("ec2", "i-001")))

	diffs := tracker.ComputeDiff(makeReport("sg-1",
		found("ec2", "i-001", "i-002"),
	))

	require.Len(t, diffs, 1)
	assert.Equal(t, Change{
		Type:            ChangeAttached,
		SecurityGroupID: "sg-1",
		Provider:        "ec2",
		ResourceID:      "i-002",
	}, diffs[0])
}

func TestDiffTracker_Detached(t *testing.T) {
	tracker := NewDiffTracker()
	tracker.Update(makeReport("sg-1", found("ec2", "i-001", "i-002")))

	diffs := tracker.ComputeDiff(makeReport("sg-1", found("ec2", "i-001")))

	require.Len(t, diffs, 1)
	assert.Equal(t, ChangeDetached, diffs[0].Type)
	assert.Equal(t, "i-002", diffs[0].ResourceID)
}

func TestDiffTracker_SameIDDifferentProvider(t *testing.T) {
	tracker := NewDiffTracker()
	tracker.Update(makeReport("sg-1", found("rds", "db-1"), found("docdb")))

	diffs := tracker.ComputeDiff(makeReport("sg-1", found("rds"), found("docdb", "db-1")))

	require.Len(t, diffs, 2)
	assert.Equal(t, "docdb", diffs[0].Provider)
	assert.Equal(t, ChangeAttached, diffs[0].Type)
	assert.Equal(t, "rds", diffs[1].Provider)
	assert.Equal(t, ChangeDetached, diffs[1].Type)
}

func TestDiffTracker_FailedProviderKeepsBaseline(t *testing.T) {
	tracker := NewDiffTracker()
	tracker.Update(makeReport("sg-1", found("ec2", "i-001"), found("rds", "db-1")))

	// rds fails: its attachment must not be reported as detached
	erroring := makeReport("sg-1", found("ec2", "i-001"), failed("rds"))
	diffs := tracker.ComputeDiff(erroring)
	assert.Empty(t, diffs)
	tracker.Update(erroring)

	// rds recovers with the same attachment: still no change
	diffs = tracker.ComputeDiff(makeReport("sg-1", found("ec2", "i-001"), found("rds", "db-1")))
	assert.Empty(t, diffs)
}

func TestDiffTracker_SkippedItemsKeepBaseline(t *testing.T) {
	tracker := NewDiffTracker()
	tracker.Update(makeReport("sg-1", found("eks", "prod")))

	// prod could not be described this cycle: it is unchecked, not detached
	skipping := makeReport("sg-1", usage.Succeeded("eks", "eks", usage.Matches{
		IDs:     []string{"staging"},
		Skipped: []usage.Skipped{{Item: "prod", Err: usage.Transient(errors.New("throttled"))}},
	}))
	diffs := tracker.ComputeDiff(skipping)
	require.Len(t, diffs, 1)
	assert.Equal(t, ChangeAttached, diffs[0].Type)
	assert.Equal(t, "staging", diffs[0].ResourceID)
	tracker.Update(skipping)

	// Next complete cycle finds prod again: no flap
	diffs = tracker.ComputeDiff(makeReport("sg-1", found("eks", "prod", "staging")))
	assert.Empty(t, diffs)
	tracker.Update(makeReport("sg-1", found("eks", "prod", "staging")))

	// A complete lookup without prod detaches it
	diffs = tracker.ComputeDiff(makeReport("sg-1", found("eks", "staging")))
	require.Len(t, diffs, 1)
	assert.Equal(t, ChangeDetached, diffs[0].Type)
	assert.Equal(t, "prod", diffs[0].ResourceID)
}

func TestDiffTracker_GroupsAreIndependent(t *testing.T) {
	tracker := NewDiffTracker()
	tracker.Update(makeReport("sg-1", found("ec2", "i-001")))

	assert.Nil(t, tracker.ComputeDiff(makeReport("sg-2", found("ec2", "i-009"))))
	assert.Empty(t, tracker.ComputeDiff(makeReport("sg-1", found("ec2", "i-001"))))
}

func TestDiffTracker_MultipleChangesSorted(t *testing.T) {
	tracker := NewDiffTracker()
	tracker.Update(makeReport("sg-1",
		found("ec2", "i-001", "i-002", "i-003"),
		found("eni", "eni-1"),
	))

	diffs := tracker.ComputeDiff(makeReport("sg-1",
		found("ec2", "i-001", "i-003", "i-004"),
		found("eni"),
	))

	require.Len(t, diffs, 3)
	assert.Equal(t, "i-002", diffs[0].ResourceID)
	assert.Equal(t, ChangeDetached, diffs[0].Type)
	assert.Equal(t, "i-004", diffs[1].ResourceID)
	assert.Equal(t, ChangeAttached, diffs[1].Type)
	assert.Equal(t, "eni-1", diffs[2].ResourceID)
	assert.Equal(t, ChangeDetached, diffs[2].Type)
}
