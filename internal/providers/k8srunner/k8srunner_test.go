package k8srunner

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/flowforge-ai/flowforge/internal/provider"
)

// completeJobsOnCreate stamps a terminal condition on every created job so
// the poll loop finishes on its first pass.
func completeJobsOnCreate(cs *fake.Clientset, condType batchv1.JobConditionType) {
	cs.PrependReactor("create", "jobs", func(action k8stesting.Action) (bool, runtime.Object, error) {
		job := action.(k8stesting.CreateAction).GetObject().(*batchv1.Job)
		job.Status.Conditions = []batchv1.JobCondition{{Type: condType, Status: corev1.ConditionTrue}}
		return false, job, nil
	})
}

func newTestRunner(cs *fake.Clientset, cfg Config) *Runner {
	return NewFromInterface(cs, cfg, zerolog.Nop())
}

func TestRun_Completes(t *testing.T) {
	cs := fake.NewSimpleClientset()
	completeJobsOnCreate(cs, batchv1.JobComplete)
	r := newTestRunner(cs, Config{Namespace: "ci", Image: "busybox"})

	result, err := r.Run(context.Background(), provider.RunRequest{
		Name:    "Build Widgets",
		Command: []string{"make", "build"},
		Env:     map[string]string{"CI": "true"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)

	jobs, err := cs.BatchV1().Jobs("ci").List(context.Background(), metav1.ListOptions{})
	require.NoError(t, err)
	// TTL cleanup deletes the job after the run.
	assert.Empty(t, jobs.Items)
}

func TestRun_JobSpec(t *testing.T) {
	cs := fake.NewSimpleClientset()
	var created *batchv1.Job
	cs.PrependReactor("create", "jobs", func(action k8stesting.Action) (bool, runtime.Object, error) {
		created = action.(k8stesting.CreateAction).GetObject().(*batchv1.Job)
		created.Status.Conditions = []batchv1.JobCondition{{Type: batchv1.JobComplete, Status: corev1.ConditionTrue}}
		return false, created, nil
	})
	r := newTestRunner(cs, Config{Namespace: "ci", Image: "builder:v2"})

	_, err := r.Run(context.Background(), provider.RunRequest{
		Name:    "lint",
		Command: []string{"golangci-lint", "run"},
		Env:     map[string]string{"B": "2", "A": "1"},
	})
	require.NoError(t, err)

	require.NotNil(t, created)
	container := created.Spec.Template.Spec.Containers[0]
	assert.Equal(t, "builder:v2", container.Image)
	assert.Equal(t, []string{"golangci-lint", "run"}, container.Command)
	require.Len(t, container.Env, 2)
	assert.Equal(t, "A", container.Env[0].Name, "env vars are emitted in sorted order")
	assert.Equal(t, corev1.RestartPolicyNever, created.Spec.Template.Spec.RestartPolicy)
	assert.Contains(t, created.Name, "lint-")
}

func TestRun_Failed(t *testing.T) {
	cs := fake.NewSimpleClientset()
	completeJobsOnCreate(cs, batchv1.JobFailed)
	r := newTestRunner(cs, Config{Namespace: "ci"})

	result, err := r.Run(context.Background(), provider.RunRequest{Name: "t", Command: []string{"false"}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ExitCode)
}

func TestRun_NamespaceNotAllowed(t *testing.T) {
	cs := fake.NewSimpleClientset()
	r := newTestRunner(cs, Config{Namespace: "prod", AllowedNamespaces: []string{"ci", "staging"}})

	_, err := r.Run(context.Background(), provider.RunRequest{Name: "t", Command: []string{"true"}})
	assert.ErrorContains(t, err, "not allowed")
}

func TestRun_NoCommand(t *testing.T) {
	cs := fake.NewSimpleClientset()
	r := newTestRunner(cs, Config{Namespace: "ci"})

	_, err := r.Run(context.Background(), provider.RunRequest{Name: "t"})
	assert.ErrorContains(t, err, "no command")
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "build-widgets", sanitizeName("Build Widgets"))
	assert.Equal(t, "run", sanitizeName(""))
	assert.Len(t, sanitizeName("averyveryveryveryveryveryverylongjobnameindeed"), 40)
}
