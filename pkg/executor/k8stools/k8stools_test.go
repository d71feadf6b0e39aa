package k8stools_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-logr/logr"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/kubernaut-bdi/agent/pkg/executor/k8stools"
	"github.com/kubernaut-bdi/agent/pkg/types"
)

func int32ptr(v int32) *int32 { return &v }

func deployment(ns, name string, replicas int32, image string) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns},
		Spec: appsv1.DeploymentSpec{
			Replicas: int32ptr(replicas),
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{Name: "app", Image: image}},
				},
			},
		},
		Status: appsv1.DeploymentStatus{Replicas: replicas, AvailableReplicas: replicas},
	}
}

func TestSnapshotCapturesReplicasAndImage(t *testing.T) {
	client := fake.NewSimpleClientset(deployment("prod", "checkout", 3, "checkout:v1"))
	tools := k8stools.New(client, logr.Discard())

	snap, err := tools.Snapshot(context.Background(), types.ActionSchema{
		Name: "restart_deployment", Namespace: "prod", Target: "checkout",
	})
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	var decoded struct {
		Image    string `json:"image"`
		Replicas int32  `json:"replicas"`
	}
	if err := json.Unmarshal(snap, &decoded); err != nil {
		t.Fatalf("snapshot not valid JSON: %v", err)
	}
	if decoded.Replicas != 3 || decoded.Image != "checkout:v1" {
		t.Errorf("snapshot = %+v, want replicas=3 image=checkout:v1", decoded)
	}
}

func TestSnapshotSkipsNonMutatingActions(t *testing.T) {
	client := fake.NewSimpleClientset()
	tools := k8stools.New(client, logr.Discard())

	snap, err := tools.Snapshot(context.Background(), types.ActionSchema{Name: "get_pod_logs"})
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap != nil {
		t.Errorf("expected nil snapshot for a non-mutating action, got %v", snap)
	}
}

func TestRestartDeploymentAnnotatesPodTemplate(t *testing.T) {
	client := fake.NewSimpleClientset(deployment("prod", "checkout", 2, "checkout:v1"))
	tools := k8stools.New(client, logr.Discard())

	err := tools.Invoke(context.Background(), types.ActionSchema{
		Name: "restart_deployment", Namespace: "prod", Target: "checkout",
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	updated, err := client.AppsV1().Deployments("prod").Get(context.Background(), "checkout", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if updated.Spec.Template.Annotations["bdi-agent/restartedAt"] == "" {
		t.Error("expected restart annotation to be set")
	}
}

func TestScaleDeploymentToZero(t *testing.T) {
	client := fake.NewSimpleClientset(deployment("prod", "checkout", 3, "checkout:v1"))
	tools := k8stools.New(client, logr.Discard())

	err := tools.Invoke(context.Background(), types.ActionSchema{
		Name: "scale_deployment", Namespace: "prod", Target: "checkout",
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	updated, _ := client.AppsV1().Deployments("prod").Get(context.Background(), "checkout", metav1.GetOptions{})
	if updated.Spec.Replicas == nil || *updated.Spec.Replicas != 0 {
		t.Errorf("expected replicas scaled to 0, got %v", updated.Spec.Replicas)
	}
}

func TestVerifyRecoverySucceedsWhenFullyAvailable(t *testing.T) {
	client := fake.NewSimpleClientset(deployment("prod", "checkout", 3, "checkout:v1"))
	tools := k8stools.New(client, logr.Discard())

	err := tools.Invoke(context.Background(), types.ActionSchema{
		Name: "verify_recovery", Namespace: "prod", Target: "checkout",
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
}

func TestVerifyRecoveryFailsWhenUnavailableReplicasRemain(t *testing.T) {
	deploy := deployment("prod", "checkout", 3, "checkout:v1")
	deploy.Status.AvailableReplicas = 1
	client := fake.NewSimpleClientset(deploy)
	tools := k8stools.New(client, logr.Discard())

	err := tools.Invoke(context.Background(), types.ActionSchema{
		Name: "verify_recovery", Namespace: "prod", Target: "checkout",
	})
	if err == nil {
		t.Fatal("expected verify_recovery to fail while replicas remain unavailable")
	}
}

func TestInvokeRejectsUnknownAction(t *testing.T) {
	client := fake.NewSimpleClientset()
	tools := k8stools.New(client, logr.Discard())

	err := tools.Invoke(context.Background(), types.ActionSchema{Name: "nuke_cluster"})
	if err == nil {
		t.Fatal("expected an error for an unregistered tool action")
	}
}

func TestCompensateRestoresReplicasAndImage(t *testing.T) {
	client := fake.NewSimpleClientset(deployment("prod", "checkout", 0, "checkout:v2"))
	tools := k8stools.New(client, logr.Discard())

	snapshot, err := json.Marshal(struct {
		Image    string `json:"image"`
		Replicas int32  `json:"replicas"`
	}{Image: "checkout:v1", Replicas: 3})
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}

	err = tools.Compensate(context.Background(), types.ActionSchema{
		Name: "restart_deployment", Namespace: "prod", Target: "checkout",
	}, snapshot)
	if err != nil {
		t.Fatalf("Compensate() error = %v", err)
	}

	restored, _ := client.AppsV1().Deployments("prod").Get(context.Background(), "checkout", metav1.GetOptions{})
	if restored.Spec.Replicas == nil || *restored.Spec.Replicas != 3 {
		t.Errorf("expected replicas restored to 3, got %v", restored.Spec.Replicas)
	}
	if restored.Spec.Template.Spec.Containers[0].Image != "checkout:v1" {
		t.Errorf("expected image restored to checkout:v1, got %s", restored.Spec.Template.Spec.Containers[0].Image)
	}
}

func TestCompensateNoopsOnEmptySnapshot(t *testing.T) {
	client := fake.NewSimpleClientset()
	tools := k8stools.New(client, logr.Discard())

	if err := tools.Compensate(context.Background(), types.ActionSchema{Name: "get_pod_logs"}, nil); err != nil {
		t.Errorf("expected nil error compensating an Observe action with no snapshot, got %v", err)
	}
}
