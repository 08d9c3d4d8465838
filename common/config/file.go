package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/favbox/ferry/common/json"
	"github.com/spf13/afero"
)

// LoadFile 从 JSON 文件读取配置项，值可以是字符串、数字、布尔或字符串数组（仅 listen）。
func LoadFile(fs afero.Fs, path string) (map[string]string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err = json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}
	kw := make(map[string]string, len(raw))
	for k, v := range raw {
		s, err := stringify(v)
		if err != nil {
			return nil, fmt.Errorf("配置项 %s: %w", k, err)
		}
		kw[k] = s
	}
	return kw, nil
}

func stringify(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			s, err := stringify(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, " "), nil
	case nil:
		return "", nil
	}
	return "", fmt.Errorf("不支持的值类型 %T", v)
}
