// Package compliance provides the immutable compliance template every persona is merged with.
package compliance

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/handoff-engine/internal/model"
)

// DefaultVersion is the version of the built-in template.
const DefaultVersion = "v1"

// nicheVocabulary is the vocabulary that belongs to each niche. A persona must not use
// the vocabulary of any other niche.
var nicheVocabulary = map[model.Niche][]string{
	model.NicheReligious: {
		"deus", "jesus", "igreja", "oração", "orar", "bíblia", "culto", "pastor",
		"evangelho", "versículo", "louvor", "espírito santo",
	},
	model.NichePolitical: {
		"eleição", "eleições", "voto", "votar", "candidato", "candidata", "partido",
		"deputado", "vereador", "prefeito", "senador", "campanha eleitoral",
	},
	model.NicheWellness: {
		"dieta", "emagrecer", "emagrecimento", "treino", "suplemento", "detox",
		"academia", "meditação", "skincare",
	},
	model.NicheFinance: {
		"investimento", "investir", "bolsa de valores", "cripto", "bitcoin",
		"renda extra", "rendimento", "empréstimo",
	},
}

// Default returns the built-in compliance template. Each call returns a fresh copy.
func Default() *model.CompliancePolicy {
	return &model.CompliancePolicy{
		Version:                    DefaultVersion,
		MaxConsecutiveAutoMessages: 3,
		AllowLinks:                 false,
		AllowPrice:                 false,
		GlobalForbiddenTerms: []string{
			"porra", "caralho", "merda", "foda", "fdp", "puta", "otário", "imbecil",
			"vai se foder", "cura garantida", "resultado garantido", "lucro garantido",
			"dinheiro fácil",
		},
		MandatoryStopTriggers: []string{
			"amém", "obrigado", "obrigada", "valeu", "tchau", "até mais", "boa noite",
			"pare", "parar", "para de mandar", "não quero mais", "sair", "stop",
			"descadastrar", "me tira da lista", "deus abençoe",
		},
		MandatoryEscalationTriggers: map[model.EscalationReason][]string{
			model.EscalationDistress: {
				"quero morrer", "vou me matar", "me matar", "suicídio", "suicidar",
				"não aguento mais", "depressão", "desesperado", "desesperada", "socorro",
				"automutilação", "me cortar",
			},
			model.EscalationLegalThreat: {
				"advogado", "processar", "processo", "procon", "polícia", "delegacia",
				"denúncia", "denunciar", "justiça", "boletim de ocorrência", "lgpd",
			},
			model.EscalationAudioMessage: {
				"audio omitted", "áudio omitido", "mensagem de voz", "voice message",
			},
			model.EscalationAggression: {
				"vai se foder", "vai tomar no cu", "filho da puta", "fdp", "desgraçado",
				"palhaçada", "idiota", "imbecil", "otário", "porra", "caralho", "merda",
			},
		},
		BotSuspicionTriggers: []string{
			"bot", "robô", "chatbot", "chatgpt", "inteligência artificial", "uma ia",
			"vc é ia", "você é ia", "mensagem automática", "resposta automática",
			"atendimento automático", "é automático", "é automática", "é automatizado",
			"é uma máquina", "é máquina", "pessoa de verdade", "pessoa real",
		},
		NicheExclusions: BuildNicheExclusions(nicheVocabulary),
	}
}

// BuildNicheExclusions maps every niche to the vocabulary of all other niches. The general
// niche excludes political vocabulary only.
func BuildNicheExclusions(vocab map[model.Niche][]string) map[model.Niche][]string {
	out := make(map[model.Niche][]string, len(model.Niches))
	for _, niche := range model.Niches {
		if niche == model.NicheGeneral {
			out[niche] = model.Union(vocab[model.NichePolitical])
			continue
		}
		var others [][]string
		for other, terms := range vocab {
			if other != niche {
				others = append(others, terms)
			}
		}
		out[niche] = model.Union(others...)
	}
	return out
}

// Load reads a compliance template from a YAML file.
func Load(path string) (*model.CompliancePolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}

	var tpl model.CompliancePolicy
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	if err := Validate(&tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// Validate checks that a template is usable.
func Validate(tpl *model.CompliancePolicy) error {
	var errs []error
	if tpl.Version == "" {
		errs = append(errs, errors.New("template version is required"))
	}
	if tpl.MaxConsecutiveAutoMessages < 1 {
		errs = append(errs, errors.New("max_consecutive_auto_messages must be at least 1"))
	}
	if len(tpl.MandatoryStopTriggers) == 0 {
		errs = append(errs, errors.New("mandatory_stop_triggers cannot be empty"))
	}
	if len(tpl.BotSuspicionTriggers) == 0 {
		errs = append(errs, errors.New("bot_suspicion_triggers cannot be empty"))
	}
	for niche := range tpl.NicheExclusions {
		if !niche.Valid() {
			errs = append(errs, fmt.Errorf("unknown niche %q in niche_exclusions", niche))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid compliance template: %w", errors.Join(errs...))
	}
	return nil
}
