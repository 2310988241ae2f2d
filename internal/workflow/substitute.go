package workflow

import (
	"fmt"
	"strings"
)

const (
	substituteLowScore  = 2
	substituteHighScore = 7
)

// Substitute returns the deterministic offline response for flow.
func Substitute(flow Flow, inputs map[string]any) Output {
	topic := stringInput(inputs, "topic")
	name := stringInput(inputs, "name")

	switch flow {
	case FlowWelcoming:
		return textOutput(fmt.Sprintf(
			"Merhaba %s! %s eğitimine hoş geldin. Başlamaya hazır mısın?", name, topic))
	case FlowReadyCheck:
		return textOutput("Anladım. Hazır olduğunda \"evet, hazırım\" yazman yeterli.")
	case FlowTopicInit:
		return textOutput(fmt.Sprintf(
			"Merhaba %s! %s eğitimi için çok heyecanlıyım. Bugün seninle bu konuyu derinlemesine inceleyeceğiz.", name, topic))
	case FlowSeparation:
		return textOutput("Temel İlk Yardım Eğitimi genellikle aşağıdaki 5 ana başlık altında toplanır: " +
			"<topics>İlk Yardımın Temel İlkeleri, Temel Yaşam Desteği (TYD), Yaralanmalarda İlk Yardım, " +
			"Acil Durumlar ve Hastalıklarda İlk Yardım, Çevresel ve Özel Durumlarda İlk Yardım</topics>")
	case FlowQuestion:
		return textOutput(fmt.Sprintf("%s konusunda öğrendiklerini kendi cümlelerinle açıklar mısın?", topic))
	case FlowAnswer:
		score := substituteHighScore
		if strings.TrimSpace(stringInput(inputs, "answer")) == "" {
			score = substituteLowScore
		}
		return Output{
			Text:  fmt.Sprintf("Cevabını değerlendirdim. Puanın: %d", score),
			Extra: map[string]any{"score": score},
		}
	case FlowReLesson:
		return textOutput(fmt.Sprintf(
			"%s konusunu bir kez daha, adım adım ele alalım. Önemli noktaları birlikte tekrar edeceğiz.", topic))
	default:
		return textOutput("Workflow bulunamadı. (Yedek yanıt)")
	}
}

func textOutput(text string) Output {
	return Output{Text: text, Extra: map[string]any{}}
}

func stringInput(inputs map[string]any, key string) string {
	v, ok := inputs[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
