package aws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"

	"github.com/projecteru2/remote/config"
	"github.com/projecteru2/remote/provider"
	"github.com/projecteru2/remote/types"
)

// fakeEC2 is a scripted EC2API.
type fakeEC2 struct {
	mu        sync.Mutex
	instances map[string]ec2types.Instance
	pages     [][]ec2types.Instance // returned by unfiltered DescribeInstances
	errs      map[string][]error
	calls     map[string]int
	modified  *ec2.ModifyInstanceAttributeInput
	run       *ec2.RunInstancesInput
}

func newFakeEC2() *fakeEC2 {
	return &fakeEC2{
		instances: map[string]ec2types.Instance{},
		errs:      map[string][]error{},
		calls:     map[string]int{},
	}
}

func (f *fakeEC2) put(id string, state ec2types.InstanceStateName, typ string) {
	f.instances[id] = ec2types.Instance{
		InstanceId:    aws.String(id),
		InstanceType:  ec2types.InstanceType(typ),
		State:         &ec2types.InstanceState{Name: state},
		PublicDnsName: aws.String(id + ".compute.amazonaws.com"),
		Tags:          []ec2types.Tag{{Key: aws.String("Name"), Value: aws.String("box-" + id)}},
	}
}

func (f *fakeEC2) enter(op string) error {
	f.calls[op]++
	if q := f.errs[op]; len(q) > 0 {
		f.errs[op] = q[1:]
		return q[0]
	}
	return nil
}

func (f *fakeEC2) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DescribeInstances"); err != nil {
		return nil, err
	}
	if len(in.InstanceIds) == 0 {
		page := 0
		if in.NextToken != nil {
			_, _ = fmt.Sscanf(*in.NextToken, "%d", &page)
		}
		out := &ec2.DescribeInstancesOutput{}
		if page < len(f.pages) {
			out.Reservations = []ec2types.Reservation{{Instances: f.pages[page]}}
		}
		if page+1 < len(f.pages) {
			out.NextToken = aws.String(fmt.Sprint(page + 1))
		}
		return out, nil
	}
	out := &ec2.DescribeInstancesOutput{}
	for _, id := range in.InstanceIds {
		if inst, ok := f.instances[id]; ok {
			out.Reservations = append(out.Reservations, ec2types.Reservation{Instances: []ec2types.Instance{inst}})
		}
	}
	return out, nil
}

func (f *fakeEC2) StartInstances(_ context.Context, in *ec2.StartInstancesInput, _ ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("StartInstances"); err != nil {
		return nil, err
	}
	return &ec2.StartInstancesOutput{StartingInstances: []ec2types.InstanceStateChange{{
		InstanceId:    aws.String(in.InstanceIds[0]),
		PreviousState: &ec2types.InstanceState{Name: ec2types.InstanceStateNameStopped},
		CurrentState:  &ec2types.InstanceState{Name: ec2types.InstanceStateNamePending},
	}}}, nil
}

func (f *fakeEC2) StopInstances(_ context.Context, _ *ec2.StopInstancesInput, _ ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &ec2.StopInstancesOutput{}, f.enter("StopInstances")
}

func (f *fakeEC2) ModifyInstanceAttribute(_ context.Context, in *ec2.ModifyInstanceAttributeInput, _ ...func(*ec2.Options)) (*ec2.ModifyInstanceAttributeOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modified = in
	return &ec2.ModifyInstanceAttributeOutput{}, f.enter("ModifyInstanceAttribute")
}

func (f *fakeEC2) TerminateInstances(_ context.Context, _ *ec2.TerminateInstancesInput, _ ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &ec2.TerminateInstancesOutput{}, f.enter("TerminateInstances")
}

func (f *fakeEC2) RunInstances(_ context.Context, in *ec2.RunInstancesInput, _ ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.run = in
	if err := f.enter("RunInstances"); err != nil {
		return nil, err
	}
	return &ec2.RunInstancesOutput{Instances: []ec2types.Instance{{InstanceId: aws.String("i-new")}}}, nil
}

func newTestEC2(t *testing.T, f *fakeEC2) (*EC2, *[]string) {
	t.Helper()
	conf := config.DefaultConfig()
	conf.Retry = config.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	var profiles []string
	p := New(conf, func(_ context.Context, profile, _ string) (EC2API, error) {
		profiles = append(profiles, profile)
		return f, nil
	})
	return p, &profiles
}

func inst(id string) types.Instance {
	return types.Instance{Alias: "dev", Provider: types.ProviderAWS, Profile: "work", InstanceID: id}
}

func apiErr(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

// --- state mapping ---

func TestStateOf(t *testing.T) {
	tests := map[ec2types.InstanceStateName]types.Status{
		ec2types.InstanceStateNamePending:      types.StatusStarting,
		ec2types.InstanceStateNameRunning:      types.StatusRunning,
		ec2types.InstanceStateNameStopping:     types.StatusStopping,
		ec2types.InstanceStateNameStopped:      types.StatusStopped,
		ec2types.InstanceStateNameShuttingDown: types.StatusTerminated,
		ec2types.InstanceStateNameTerminated:   types.StatusTerminated,
		"rebooting":                            types.StatusUnknown,
	}
	for name, want := range tests {
		if got := stateOf(&ec2types.InstanceState{Name: name}); got != want {
			t.Errorf("%s: expected %s, got %s", name, want, got)
		}
	}
	if got := stateOf(nil); got != types.StatusUnknown {
		t.Errorf("nil state: expected unknown, got %s", got)
	}
}

// --- classify ---

type httpErr struct{ code int }

func (e httpErr) Error() string       { return fmt.Sprintf("http %d", e.code) }
func (e httpErr) HTTPStatusCode() int { return e.code }

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want provider.ErrorKind
	}{
		{apiErr("AuthFailure"), provider.KindAuth},
		{apiErr("UnauthorizedOperation"), provider.KindAuth},
		{apiErr("InvalidInstanceID.NotFound"), provider.KindNotFound},
		{apiErr("RequestLimitExceeded"), provider.KindRateLimited},
		{apiErr("InternalError"), provider.KindUnavailable},
		{apiErr("IncorrectInstanceState"), provider.KindInvalidState},
		{apiErr("SomethingNew"), provider.KindOther},
		{httpErr{403}, provider.KindAuth},
		{httpErr{429}, provider.KindRateLimited},
		{httpErr{503}, provider.KindUnavailable},
		{httpErr{400}, provider.KindOther},
		{fmt.Errorf("wrapped: %w", context.Canceled), provider.KindOther},
		{errors.New("plain"), provider.KindOther},
	}
	for _, tt := range tests {
		if got := classify(tt.err); got != tt.want {
			t.Errorf("classify(%v): expected %s, got %s", tt.err, tt.want, got)
		}
	}
}

// --- Describe ---

func TestDescribe(t *testing.T) {
	f := newFakeEC2()
	f.put("i-1", ec2types.InstanceStateNameRunning, "t3.small")
	p, profiles := newTestEC2(t, f)

	obs, err := p.Describe(context.Background(), inst("i-1"))
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if obs.Status != types.StatusRunning || obs.RawState != "running" || obs.InstanceType != "t3.small" {
		t.Errorf("unexpected observation %+v", obs)
	}
	if obs.PublicDNS != "i-1.compute.amazonaws.com" || obs.Tags["Name"] != "box-i-1" {
		t.Errorf("unexpected dns/tags %q %v", obs.PublicDNS, obs.Tags)
	}
	if len(*profiles) != 1 || (*profiles)[0] != "work" {
		t.Errorf("expected client for profile work, got %v", *profiles)
	}

	// client is cached per profile/region
	_, _ = p.Describe(context.Background(), inst("i-1"))
	if len(*profiles) != 1 {
		t.Errorf("expected cached client, factory called %d times", len(*profiles))
	}
}

func TestDescribe_NotFound(t *testing.T) {
	p, _ := newTestEC2(t, newFakeEC2())
	_, err := p.Describe(context.Background(), inst("i-gone"))
	if !provider.IsKind(err, provider.KindNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestDescribe_RetriesThrottling(t *testing.T) {
	f := newFakeEC2()
	f.put("i-1", ec2types.InstanceStateNameStopped, "t3.small")
	f.errs["DescribeInstances"] = []error{apiErr("RequestLimitExceeded"), apiErr("RequestLimitExceeded")}
	p, _ := newTestEC2(t, f)

	obs, err := p.Describe(context.Background(), inst("i-1"))
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if obs.Status != types.StatusStopped {
		t.Errorf("expected stopped, got %s", obs.Status)
	}
	if f.calls["DescribeInstances"] != 3 {
		t.Errorf("expected 3 calls, got %d", f.calls["DescribeInstances"])
	}
}

func TestDescribe_AuthNotRetried(t *testing.T) {
	f := newFakeEC2()
	f.errs["DescribeInstances"] = []error{apiErr("AuthFailure")}
	p, _ := newTestEC2(t, f)
	_, err := p.Describe(context.Background(), inst("i-1"))
	if !provider.IsKind(err, provider.KindAuth) {
		t.Errorf("expected Auth, got %v", err)
	}
	if f.calls["DescribeInstances"] != 1 {
		t.Errorf("expected 1 call, got %d", f.calls["DescribeInstances"])
	}
}

func TestCall_RequiresInstanceID(t *testing.T) {
	f := newFakeEC2()
	p, _ := newTestEC2(t, f)
	err := p.Start(context.Background(), inst(""))
	if !provider.IsKind(err, provider.KindNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
	if f.calls["StartInstances"] != 0 {
		t.Error("expected no API call")
	}
}

// --- Start / Stop ---

func TestStart_InvalidState(t *testing.T) {
	f := newFakeEC2()
	f.errs["StartInstances"] = []error{apiErr("IncorrectInstanceState")}
	p, _ := newTestEC2(t, f)
	err := p.Start(context.Background(), inst("i-1"))
	if !provider.IsKind(err, provider.KindInvalidState) {
		t.Errorf("expected InvalidState, got %v", err)
	}
}

// --- Resize ---

func TestResize_RejectsRunning(t *testing.T) {
	f := newFakeEC2()
	f.put("i-1", ec2types.InstanceStateNameRunning, "t3.small")
	p, _ := newTestEC2(t, f)
	err := p.Resize(context.Background(), inst("i-1"), "t3.large")
	if !provider.IsKind(err, provider.KindInvalidState) {
		t.Errorf("expected InvalidState, got %v", err)
	}
	if f.calls["ModifyInstanceAttribute"] != 0 {
		t.Error("expected no ModifyInstanceAttribute call on a running instance")
	}
}

func TestResize_Stopped(t *testing.T) {
	f := newFakeEC2()
	f.put("i-1", ec2types.InstanceStateNameStopped, "t3.small")
	p, _ := newTestEC2(t, f)
	if err := p.Resize(context.Background(), inst("i-1"), "t3.large"); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if f.modified == nil || aws.ToString(f.modified.InstanceType.Value) != "t3.large" {
		t.Errorf("expected type t3.large, got %+v", f.modified)
	}
}

// --- Provision ---

func TestProvision(t *testing.T) {
	f := newFakeEC2()
	p, _ := newTestEC2(t, f)
	rec := inst("")
	rec.Type = "t3.micro"
	id, err := p.Provision(context.Background(), rec, types.ProvisionRequest{
		Image:          "ami-123",
		KeyName:        "dev",
		SecurityGroups: []string{"sg-1"},
	})
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if id != "i-new" {
		t.Errorf("expected i-new, got %q", id)
	}
	if f.run.InstanceType != "t3.micro" || aws.ToString(f.run.ImageId) != "ami-123" || aws.ToString(f.run.KeyName) != "dev" {
		t.Errorf("unexpected RunInstances input %+v", f.run)
	}
	tags := tagMap(f.run.TagSpecifications[0].Tags)
	if tags["Name"] != "dev" {
		t.Errorf("expected Name tag dev, got %v", tags)
	}
}

func TestProvision_RequiresImage(t *testing.T) {
	f := newFakeEC2()
	p, _ := newTestEC2(t, f)
	if _, err := p.Provision(context.Background(), inst(""), types.ProvisionRequest{}); err == nil {
		t.Fatal("expected error without image")
	}
	if f.calls["RunInstances"] != 0 {
		t.Error("expected no RunInstances call")
	}
}

func TestProvision_NotRetried(t *testing.T) {
	f := newFakeEC2()
	f.errs["RunInstances"] = []error{apiErr("RequestLimitExceeded")}
	p, _ := newTestEC2(t, f)
	_, err := p.Provision(context.Background(), inst(""), types.ProvisionRequest{Image: "ami-1"})
	if !provider.IsKind(err, provider.KindRateLimited) {
		t.Errorf("expected RateLimited, got %v", err)
	}
	if f.calls["RunInstances"] != 1 {
		t.Errorf("expected 1 call, got %d", f.calls["RunInstances"])
	}
}

// --- ListAvailable ---

func TestListAvailable_PagesLazily(t *testing.T) {
	f := newFakeEC2()
	mk := func(id string, state ec2types.InstanceStateName) ec2types.Instance {
		return ec2types.Instance{
			InstanceId:   aws.String(id),
			InstanceType: "t3.small",
			State:        &ec2types.InstanceState{Name: state},
			Placement:    &ec2types.Placement{AvailabilityZone: aws.String("us-east-1a")},
		}
	}
	f.pages = [][]ec2types.Instance{
		{mk("i-1", ec2types.InstanceStateNameRunning), mk("i-dead", ec2types.InstanceStateNameTerminated)},
		{mk("i-2", ec2types.InstanceStateNameStopped)},
		{mk("i-3", ec2types.InstanceStateNamePending)},
	}
	p, profiles := newTestEC2(t, f)

	var ids []string
	for d, err := range p.ListAvailable(context.Background(), "work") {
		if err != nil {
			t.Fatalf("ListAvailable: %v", err)
		}
		if d.Zone != "us-east-1a" {
			t.Errorf("expected zone us-east-1a, got %q", d.Zone)
		}
		ids = append(ids, d.InstanceID)
		if len(ids) == 2 {
			break
		}
	}
	if fmt.Sprint(ids) != "[i-1 i-2]" {
		t.Errorf("expected [i-1 i-2], got %v", ids)
	}
	if f.calls["DescribeInstances"] != 2 {
		t.Errorf("expected 2 pages fetched before break, got %d", f.calls["DescribeInstances"])
	}
	if (*profiles)[0] != "work" {
		t.Errorf("expected profile work, got %v", *profiles)
	}
}

func TestListAvailable_Error(t *testing.T) {
	f := newFakeEC2()
	f.errs["DescribeInstances"] = []error{apiErr("AuthFailure")}
	p, _ := newTestEC2(t, f)
	var gotErr error
	for _, err := range p.ListAvailable(context.Background(), "default") {
		gotErr = err
	}
	if !provider.IsKind(gotErr, provider.KindAuth) {
		t.Errorf("expected Auth, got %v", gotErr)
	}
}
