package config

import (
	"sync"
	"testing"
)

// TestSingletonInstance tests the singleton pattern implementation
func TestSingletonInstance(t *testing.T) {
	ResetInstance()
	defer ResetInstance()

	instance1 := GetInstance()
	instance2 := GetInstance()
	if instance1 != instance2 {
		t.Error("GetInstance() should return the same instance")
	}
	if instance1 == nil {
		t.Error("GetInstance() should not return nil")
	}

	var wg sync.WaitGroup
	instances := make([]ConfigManager, 50)
	for i := range instances {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			instances[index] = GetInstance()
		}(i)
	}
	wg.Wait()

	for i, instance := range instances {
		if instance != instance1 {
			t.Errorf("Instance at index %d is different from first instance", i)
		}
	}
}

// TestSetInstanceForTesting tests the testing support functions
func TestSetInstanceForTesting(t *testing.T) {
	ResetInstance()
	defer ResetInstance()

	mockManager := &mockConfigManager{}
	SetInstanceForTesting(mockManager)

	if GetInstance() != mockManager {
		t.Error("GetInstance() should return the testing instance")
	}

	ResetInstance()

	newInstance := GetInstance()
	if newInstance == mockManager {
		t.Error("GetInstance() should return a new instance after reset")
	}
	if newInstance == nil {
		t.Error("GetInstance() should not return nil after reset")
	}
}

// mockConfigManager is a mock implementation for testing
type mockConfigManager struct{}

func (m *mockConfigManager) LoadConfig(configName string, config Config) error { return nil }

func (m *mockConfigManager) GetConfig(configName string) (Config, error) { return nil, nil }

func (m *mockConfigManager) RegisterValidator(configName string, validator ValidatorFunc) {}

func (m *mockConfigManager) RegisterHook(configName string, hook HookFunc) {}

func (m *mockConfigManager) AddChangeListener(listener ConfigChangeListener) {}

func (m *mockConfigManager) RemoveChangeListener(listener ConfigChangeListener) {}

func (m *mockConfigManager) ReloadConfig(configName string) error { return nil }

func (m *mockConfigManager) SetBasePath(path string) {}

func (m *mockConfigManager) SetEnvironment(env string) {}

func (m *mockConfigManager) Close() error { return nil }
