package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// fakeSecretsManager is an in-memory stand-in for the Secrets Manager API.
type fakeSecretsManager struct {
	values  map[string]string
	creates int
	getErr  error
}

func newFakeSecretsManager() *fakeSecretsManager {
	return &fakeSecretsManager{values: make(map[string]string)}
}

func (f *fakeSecretsManager) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.values[aws.ToString(in.SecretId)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("not found")}
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func (f *fakeSecretsManager) PutSecretValue(_ context.Context, in *secretsmanager.PutSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	name := aws.ToString(in.SecretId)
	if _, ok := f.values[name]; !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("not found")}
	}
	f.values[name] = aws.ToString(in.SecretString)
	return &secretsmanager.PutSecretValueOutput{}, nil
}

func (f *fakeSecretsManager) CreateSecret(_ context.Context, in *secretsmanager.CreateSecretInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
	f.creates++
	f.values[aws.ToString(in.Name)] = aws.ToString(in.SecretString)
	return &secretsmanager.CreateSecretOutput{}, nil
}

func (f *fakeSecretsManager) DeleteSecret(_ context.Context, in *secretsmanager.DeleteSecretInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error) {
	name := aws.ToString(in.SecretId)
	if _, ok := f.values[name]; !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("not found")}
	}
	delete(f.values, name)
	return &secretsmanager.DeleteSecretOutput{}, nil
}

func TestTenantSecretName(t *testing.T) {
	if got := TenantSecretName("org_A", "database"); got != "tenant/org_A/database" {
		t.Errorf("TenantSecretName = %q", got)
	}

	tenant, service, ok := ParseTenantSecretName("tenant/org_A/database")
	if !ok || tenant != "org_A" || service != "database" {
		t.Errorf("ParseTenantSecretName = %q, %q, %v", tenant, service, ok)
	}
	for _, bad := range []string{"", "tenant/org_A", "other/org_A/database", "tenant//database"} {
		if _, _, ok := ParseTenantSecretName(bad); ok {
			t.Errorf("ParseTenantSecretName(%q) should fail", bad)
		}
	}
}

func TestAWSStorePutCreatesThenUpdates(t *testing.T) {
	fake := newFakeSecretsManager()
	s := NewAWSStoreFromClient(fake)
	ctx := context.Background()

	if err := s.PutSecret(ctx, "tenant/org_A/database", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("PutSecret: %v", err)
	}
	if err := s.PutSecret(ctx, "tenant/org_A/database", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("PutSecret: %v", err)
	}
	if fake.creates != 1 {
		t.Errorf("creates = %d, want 1", fake.creates)
	}

	got, err := s.GetSecret(ctx, "tenant/org_A/database")
	if err != nil {
		t.Fatalf("GetSecret: %v", err)
	}
	if string(got) != `{"v":2}` {
		t.Errorf("GetSecret = %s", got)
	}
}

func TestAWSStoreNotFound(t *testing.T) {
	s := NewAWSStoreFromClient(newFakeSecretsManager())
	ctx := context.Background()

	if _, err := s.GetSecret(ctx, "tenant/nobody/database"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSecret err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteSecret(ctx, "tenant/nobody/database"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteSecret err = %v, want ErrNotFound", err)
	}
}

func TestAWSStoreTransientError(t *testing.T) {
	fake := newFakeSecretsManager()
	fake.getErr = errors.New("throttled")
	s := NewAWSStoreFromClient(fake)

	_, err := s.GetSecret(context.Background(), "tenant/org_A/database")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want a non-NotFound error", err)
	}
}
