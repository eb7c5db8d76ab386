// Package k8srunner executes work units as Kubernetes Jobs.
package k8srunner

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/flowforge-ai/flowforge/internal/provider"
)

const (
	jobLabelKey  = "app.kubernetes.io/managed-by"
	jobLabelVal  = "flowforge"
	pollInterval = 2 * time.Second
)

// Runner runs work units as one-shot Jobs in an allowed namespace.
type Runner struct {
	clientset         kubernetes.Interface
	namespace         string
	allowedNamespaces []string
	image             string
	logger            zerolog.Logger
}

// Config holds runner configuration.
type Config struct {
	KubeconfigPath    string
	Namespace         string
	AllowedNamespaces []string
	Image             string
}

// New creates a runner from kubeconfig or in-cluster config.
func New(cfg Config, logger zerolog.Logger) (*Runner, error) {
	var restConfig *rest.Config
	var err error

	if cfg.KubeconfigPath != "" {
		restConfig, err = clientcmd.BuildConfigFromFlags("", cfg.KubeconfigPath)
	} else {
		restConfig, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("building k8s config: %w", err)
	}

	cs, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("creating k8s clientset: %w", err)
	}
	return NewFromInterface(cs, cfg, logger), nil
}

// NewFromInterface creates a runner from an existing kubernetes.Interface
// (for testing with a fake clientset).
func NewFromInterface(cs kubernetes.Interface, cfg Config, logger zerolog.Logger) *Runner {
	ns := cfg.Namespace
	if ns == "" {
		ns = "default"
	}
	return &Runner{
		clientset:         cs,
		namespace:         ns,
		allowedNamespaces: cfg.AllowedNamespaces,
		image:             cfg.Image,
		logger:            logger.With().Str("component", "k8srunner").Logger(),
	}
}

func (r *Runner) isNamespaceAllowed(ns string) bool {
	if len(r.allowedNamespaces) == 0 {
		return true
	}
	for _, a := range r.allowedNamespaces {
		if a == ns {
			return true
		}
	}
	return false
}

// Run creates a Job for the request and waits for it to finish, returning the
// exit status and pod logs.
func (r *Runner) Run(ctx context.Context, req provider.RunRequest) (*provider.RunResult, error) {
	if !r.isNamespaceAllowed(r.namespace) {
		return nil, fmt.Errorf("namespace %q is not allowed", r.namespace)
	}
	if len(req.Command) == 0 {
		return nil, fmt.Errorf("run request has no command")
	}

	jobName := fmt.Sprintf("%s-%s", sanitizeName(req.Name), uuid.NewString()[:8])
	job := r.buildJob(jobName, req)

	created, err := r.clientset.BatchV1().Jobs(r.namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}
	r.logger.Info().Str("job", created.Name).Str("namespace", r.namespace).Msg("job created")

	defer func() {
		policy := metav1.DeletePropagationBackground
		if derr := r.clientset.BatchV1().Jobs(r.namespace).Delete(context.Background(), created.Name,
			metav1.DeleteOptions{PropagationPolicy: &policy}); derr != nil {
			r.logger.Warn().Err(derr).Str("job", created.Name).Msg("failed to clean up job")
		}
	}()

	exitCode, err := r.waitForJob(ctx, created.Name)
	if err != nil {
		return nil, err
	}

	logs := r.collectLogs(ctx, created.Name)
	return &provider.RunResult{ExitCode: exitCode, Output: logs}, nil
}

func (r *Runner) buildJob(name string, req provider.RunRequest) *batchv1.Job {
	env := make([]corev1.EnvVar, 0, len(req.Env))
	for _, k := range sortedKeys(req.Env) {
		env = append(env, corev1.EnvVar{Name: k, Value: req.Env[k]})
	}

	backoffLimit := int32(0)
	ttl := int32(300)
	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: r.namespace,
			Labels:    map[string]string{jobLabelKey: jobLabelVal},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoffLimit,
			TTLSecondsAfterFinished: &ttl,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{jobLabelKey: jobLabelVal, "job-name": name},
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{{
						Name:    "work",
						Image:   r.image,
						Command: req.Command,
						Env:     env,
					}},
				},
			},
		},
	}
}

// waitForJob polls job status until completion, failure, or ctx cancellation.
func (r *Runner) waitForJob(ctx context.Context, name string) (int, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		job, err := r.clientset.BatchV1().Jobs(r.namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return 0, fmt.Errorf("getting job status: %w", err)
		}
		for _, cond := range job.Status.Conditions {
			if cond.Status != corev1.ConditionTrue {
				continue
			}
			switch cond.Type {
			case batchv1.JobComplete:
				return 0, nil
			case batchv1.JobFailed:
				return 1, nil
			}
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// collectLogs fetches logs from the job's pods. Log retrieval is best effort:
// a job result without logs is still a result.
func (r *Runner) collectLogs(ctx context.Context, jobName string) string {
	pods, err := r.clientset.CoreV1().Pods(r.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: "job-name=" + jobName,
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("job", jobName).Msg("listing job pods failed")
		return ""
	}

	var out string
	for _, pod := range pods.Items {
		stream, err := r.clientset.CoreV1().Pods(r.namespace).GetLogs(pod.Name, &corev1.PodLogOptions{}).Stream(ctx)
		if err != nil {
			r.logger.Warn().Err(err).Str("pod", pod.Name).Msg("getting pod logs failed")
			continue
		}
		data, err := io.ReadAll(stream)
		stream.Close()
		if err == nil {
			out += string(data)
		}
	}
	return out
}

func sanitizeName(name string) string {
	if name == "" {
		return "run"
	}
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		default:
			out = append(out, '-')
		}
	}
	if len(out) > 40 {
		out = out[:40]
	}
	return string(out)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
